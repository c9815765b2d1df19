// Package core assembles a complete REST client from one Config: transport,
// runner, response cache, durable queue, session store and the controller
// that applies cache policies.
//
// # Quick Start
//
//	cfg, err := core.LoadConfig("shop-app")
//	if err != nil {
//	    return err
//	}
//	client, err := core.New(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	return client.RunTask(ctx, func(ctx context.Context) error {
//	    req, err := client.Request(rest.MethodGet, "books/42",
//	        rest.WithCachePolicy(rest.CacheElseNetwork))
//	    if err != nil {
//	        return err
//	    }
//	    resp, err := client.SendSync(ctx, req)
//	    if err != nil {
//	        return err
//	    }
//	    return resp.Err
//	})
//
// Requests that must reach the server regardless of connectivity go through
// SendEventually; they are persisted and retried once the client is started.
package core
