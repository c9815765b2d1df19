// Package transport defines the capability the runner uses to perform one
// HTTP exchange, and ships an HTTP implementation of it.
//
// A Transport never interprets status codes: any response that was received,
// including 4xx and 5xx, is returned as a Result. Errors are reserved for
// exchanges that produced no response, and are classified into the restkit
// error taxonomy:
//
//	TIMEOUT                   deadline exceeded or a network timeout
//	CANCELLED                 the context was cancelled
//	NO_INTERNET_CONNECTION    the network or host is unreachable
//	INTERNET_CONNECTION_LOST  the connection dropped mid-exchange
//	CONNECTION_FAILED         anything else that prevented a response
//
// Basic usage:
//
//	tr, err := transport.NewHTTP(transport.Config{
//	    Timeout:   30 * time.Second,
//	    RateLimit: transport.RateLimitConfig{RPS: 10, Burst: 5},
//	})
//	res, err := tr.Execute(ctx, &transport.Request{Method: "GET", URL: "https://api.example.com/items"})
package transport
