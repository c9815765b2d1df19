package transport

import (
	"context"
	"fmt"
	"net/http"
)

// AuthType identifies the authentication method.
type AuthType string

const (
	// AuthNone disables authentication.
	AuthNone AuthType = ""
	// AuthBearer uses Bearer token authentication.
	AuthBearer AuthType = "bearer"
	// AuthBasic uses HTTP Basic authentication.
	AuthBasic AuthType = "basic"
	// AuthAPIKey uses API key authentication (header or query parameter).
	AuthAPIKey AuthType = "api_key"
	// AuthSession sends the current session token from a TokenSource.
	AuthSession AuthType = "session"
)

// DefaultSessionHeader carries the session token for AuthSession.
const DefaultSessionHeader = "X-Session-Token"

// TokenSource yields the token of the current session. ok is false when no
// session is active.
type TokenSource interface {
	SessionToken(ctx context.Context) (token string, ok bool)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, bool)

// SessionToken calls f.
func (f TokenSourceFunc) SessionToken(ctx context.Context) (string, bool) { return f(ctx) }

// AuthConfig configures request authentication.
type AuthConfig struct {
	// Type is the authentication method.
	Type AuthType `yaml:"type" mapstructure:"type"`
	// Token is the bearer token (AuthBearer).
	Token string `yaml:"token" mapstructure:"token"`
	// Username is the basic auth username (AuthBasic).
	Username string `yaml:"username" mapstructure:"username"`
	// Password is the basic auth password (AuthBasic).
	Password string `yaml:"password" mapstructure:"password"`
	// Key is the API key value (AuthAPIKey).
	Key string `yaml:"key" mapstructure:"key"`
	// In specifies where to place the API key: "header" (default) or "query".
	In string `yaml:"in" mapstructure:"in"`
	// Name is the header or query parameter name (AuthAPIKey, AuthSession).
	Name string `yaml:"name" mapstructure:"name"`
}

// BearerAuth creates a bearer token auth config.
func BearerAuth(token string) AuthConfig {
	return AuthConfig{Type: AuthBearer, Token: token}
}

// BasicAuth creates a basic auth config.
func BasicAuth(username, password string) AuthConfig {
	return AuthConfig{Type: AuthBasic, Username: username, Password: password}
}

// APIKeyAuth creates an API key auth config sent via header.
func APIKeyAuth(key string) AuthConfig {
	return AuthConfig{Type: AuthAPIKey, Key: key, In: "header", Name: "X-API-Key"}
}

// APIKeyAuthQuery creates an API key auth config sent via query parameter.
func APIKeyAuthQuery(key, paramName string) AuthConfig {
	return AuthConfig{Type: AuthAPIKey, Key: key, In: "query", Name: paramName}
}

// SessionAuth sends the session token in the given header.
func SessionAuth(header string) AuthConfig {
	return AuthConfig{Type: AuthSession, Name: header}
}

// ApplyDefaults fills header names.
func (a *AuthConfig) ApplyDefaults() {
	switch a.Type {
	case AuthAPIKey:
		if a.Name == "" {
			a.Name = "X-API-Key"
		}
		if a.In == "" {
			a.In = "header"
		}
	case AuthSession:
		if a.Name == "" {
			a.Name = DefaultSessionHeader
		}
	}
}

// Validate checks the auth type and its required values.
func (a *AuthConfig) Validate() error {
	switch a.Type {
	case AuthNone, AuthSession:
		return nil
	case AuthBearer:
		if a.Token == "" {
			return fmt.Errorf("transport: auth.token is required for bearer auth")
		}
	case AuthBasic:
		if a.Username == "" {
			return fmt.Errorf("transport: auth.username is required for basic auth")
		}
	case AuthAPIKey:
		if a.Key == "" {
			return fmt.Errorf("transport: auth.key is required for api_key auth")
		}
		if a.In != "header" && a.In != "query" {
			return fmt.Errorf("transport: auth.in must be header or query, got %q", a.In)
		}
	default:
		return fmt.Errorf("transport: unknown auth type %q", a.Type)
	}
	return nil
}

// apply applies authentication to an HTTP request. Headers already set on
// the request are left alone.
func (a *AuthConfig) apply(ctx context.Context, req *http.Request, tokens TokenSource) {
	switch a.Type {
	case AuthBearer:
		if req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+a.Token)
		}
	case AuthBasic:
		if req.Header.Get("Authorization") == "" {
			req.SetBasicAuth(a.Username, a.Password)
		}
	case AuthAPIKey:
		if a.In == "query" {
			q := req.URL.Query()
			q.Set(a.Name, a.Key)
			req.URL.RawQuery = q.Encode()
		} else if req.Header.Get(a.Name) == "" {
			req.Header.Set(a.Name, a.Key)
		}
	case AuthSession:
		if tokens == nil || req.Header.Get(a.Name) != "" {
			return
		}
		if token, ok := tokens.SessionToken(ctx); ok {
			req.Header.Set(a.Name, token)
		}
	}
}
