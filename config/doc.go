// Package config loads restkit client configuration.
//
// Configuration is read from a YAML file, an optional .env file and the
// process environment, in that order of increasing precedence. Environment
// variables are prefixed with the upper-cased client name:
//
//	RESTKIT_API_BASE_URL=https://api.example.com
//	RESTKIT_EVENTUALLY_MAX_ATTEMPTS=3
//
// Every config struct in restkit exposes ApplyDefaults and Validate.
package config
