package session

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/rest"
)

var testKDF = kdfParams{Time: 1, MemoryKB: 1024, Threads: 1}

func withKDF(p kdfParams) FileOption {
	return func(b *fileBackend) { b.kdf = p }
}

func newFileStore(t *testing.T, path, passphrase string) *FileStore {
	t.Helper()
	s, err := NewFileStore(path, passphrase, logger.NewNop(), withKDF(testKDF))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   newFileStore(t, filepath.Join(t.TempDir(), "session.enc"), "correct horse"),
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: gojwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestStore_TokenLifecycle(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, _, ok, err := s.Current(ctx); ok || err != nil {
				t.Fatalf("expected no current session, got ok=%v err=%v", ok, err)
			}

			if err := s.Store(ctx, "tok-1", "alice"); err != nil {
				t.Fatalf("Store: %v", err)
			}
			if err := s.Store(ctx, "tok-2", "bob"); err != nil {
				t.Fatalf("Store: %v", err)
			}
			token, id, ok, err := s.Current(ctx)
			if err != nil || !ok || token != "tok-2" || id != "bob" {
				t.Errorf("Current = %q, %q, %v, %v", token, id, ok, err)
			}
			if got, ok, _ := s.TokenFor(ctx, "alice"); !ok || got != "tok-1" {
				t.Errorf("TokenFor(alice) = %q, %v", got, ok)
			}
			if got, ok := s.SessionToken(ctx); !ok || got != "tok-2" {
				t.Errorf("SessionToken = %q, %v", got, ok)
			}

			if err := s.ResetCurrentSession(ctx); err != nil {
				t.Fatalf("ResetCurrentSession: %v", err)
			}
			if _, ok := s.SessionToken(ctx); ok {
				t.Error("expected no session after reset")
			}
			if _, ok, _ := s.TokenFor(ctx, "bob"); ok {
				t.Error("expected the current token to be removed by reset")
			}
			if _, ok, _ := s.TokenFor(ctx, "alice"); !ok {
				t.Error("reset must keep other identifiers")
			}

			if err := s.Store(ctx, "", ""); err == nil {
				t.Error("expected an empty identifier to be rejected")
			}
		})
	}
}

func TestStore_Data(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte(`{"name":"alice"}`)
			if err := s.StoreData(ctx, payload, "alice"); err != nil {
				t.Fatalf("StoreData: %v", err)
			}
			payload[0] = 'x'

			got, ok, err := s.Data(ctx, "alice")
			if err != nil || !ok || string(got) != `{"name":"alice"}` {
				t.Fatalf("Data = %q, %v, %v", got, ok, err)
			}

			_ = s.Store(ctx, "tok", "alice")
			if err := s.RemoveData(ctx, "alice"); err != nil {
				t.Fatalf("RemoveData: %v", err)
			}
			if _, ok, _ := s.Data(ctx, "alice"); ok {
				t.Error("expected data to be removed")
			}
			if _, _, ok, _ := s.Current(ctx); ok {
				t.Error("removing the current identifier must end the session")
			}
			if err := s.RemoveData(ctx, "nobody"); err != nil {
				t.Errorf("removing an unknown identifier: %v", err)
			}
		})
	}
}

func TestStore_ExpiredJWTIsAbsent(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque token", "abc123", true},
		{"valid jwt", signedToken(t, now.Add(time.Hour)), true},
		{"expired jwt", signedToken(t, now.Add(-time.Minute)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			ctx := context.Background()
			if err := s.Store(ctx, tt.token, "u"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := s.TokenFor(ctx, "u"); ok != tt.want {
				t.Errorf("TokenFor ok = %v, want %v", ok, tt.want)
			}
			if _, ok := s.SessionToken(ctx); ok != tt.want {
				t.Errorf("SessionToken ok = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := ExpiresAt(signedToken(t, exp))
	if !ok || !got.Equal(exp) {
		t.Errorf("ExpiresAt = %v, %v, want %v", got, ok, exp)
	}
	if _, ok := ExpiresAt("not.a.jwt"); ok {
		t.Error("expected no expiry for a malformed token")
	}
}

func TestFileStore_EncryptedAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.enc")
	s := newFileStore(t, path, "correct horse")
	ctx := context.Background()
	if err := s.Store(ctx, "super-secret-token", "alice"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("super-secret-token")) || bytes.Contains(raw, []byte("alice")) {
		t.Error("session file contains plaintext")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v, want 0600", perm)
	}

	reopened := newFileStore(t, path, "correct horse")
	if token, ok, err := reopened.TokenFor(ctx, "alice"); err != nil || !ok || token != "super-secret-token" {
		t.Errorf("reopened TokenFor = %q, %v, %v", token, ok, err)
	}

	wrong := newFileStore(t, path, "wrong horse")
	if _, _, err := wrong.TokenFor(ctx, "alice"); !stderrors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
	if _, ok := wrong.SessionToken(ctx); ok {
		t.Error("expected no session token with the wrong passphrase")
	}
}

func TestFileStore_RejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	if err := os.WriteFile(path, []byte(`{"tokens":{"a":"b"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s := newFileStore(t, path, "pw")
	if _, _, err := s.TokenFor(context.Background(), "a"); !stderrors.Is(err, ErrInvalidFile) {
		t.Errorf("expected ErrInvalidFile, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{}, nil, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("default store = %T", s)
	}

	if _, err := Open(Config{Store: StoreFile}, nil, nil); err == nil {
		t.Error("expected the file store without passphrase to fail")
	}
	if _, err := Open(Config{Store: "keychain"}, nil, nil); err == nil {
		t.Error("expected an unknown store to fail")
	}

	path := filepath.Join(t.TempDir(), "s.enc")
	s, err = Open(Config{Store: StoreFile, Path: path, Passphrase: "pw"}, filelock.NewTable(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if fs, ok := s.(*FileStore); !ok || fs.Path() != path {
		t.Errorf("file store = %T", s)
	}
}

func TestExtractor_Capture(t *testing.T) {
	ctx := context.Background()
	req, err := rest.Post("https://api.example.com", "login")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		key       string
		resp      *rest.Response
		wantOK    bool
		wantCode  errors.ErrorCode
		wantToken string
	}{
		{
			name:      "top level key",
			key:       "sessionToken",
			resp:      rest.NewResponse(req, 200, nil, nil, map[string]any{"sessionToken": "t1"}),
			wantOK:    true,
			wantToken: "t1",
		},
		{
			name:      "nested key from raw body",
			key:       "auth.token",
			resp:      rest.NewResponse(req, 200, nil, []byte(`{"auth":{"token":"t2"}}`), nil),
			wantOK:    true,
			wantToken: "t2",
		},
		{
			name:     "missing token",
			key:      "sessionToken",
			resp:     rest.NewResponse(req, 200, nil, nil, map[string]any{"user": "alice"}),
			wantCode: errors.ErrCodeInvalidSessionToken,
		},
		{
			name: "failed response ignored",
			key:  "sessionToken",
			resp: rest.NewErrorResponse(req, errors.InvalidSessionToken()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			x := NewExtractor(s, tt.key, "current", logger.NewNop())
			ok, err := x.Capture(ctx, tt.resp)
			if ok != tt.wantOK {
				t.Errorf("Capture ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantCode != "" && !errors.Is(err, tt.wantCode) {
				t.Errorf("Capture err = %v, want %s", err, tt.wantCode)
			}
			if tt.wantCode == "" && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if token, _ := s.SessionToken(ctx); token != tt.wantToken {
				t.Errorf("SessionToken = %q, want %q", token, tt.wantToken)
			}
		})
	}
}
