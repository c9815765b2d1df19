// Package version carries the restkit build identity. It names the client in
// the User-Agent header sent by the HTTP transport and backs the CLI version
// command.
//
// Values are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/restkit/version.Version=1.4.0"
package version
