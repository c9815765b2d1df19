// Package testutil provides test doubles and helpers for restkit packages.
//
// Transport is a scripted transport.Transport: handlers are consumed one per
// call in order, every call is recorded, and calls can be held at a gate to
// observe concurrency.
//
//	tr := testutil.NewTransport().
//	    Push(testutil.Fail(errors.ConnectionFailed("api", nil))).
//	    Fallback(testutil.JSON(200, map[string]any{"ok": true}))
//
//	release := tr.Block()
//	// ... start requests, inspect tr.InFlight() ...
//	release()
//
// Modules are started with automatic cleanup:
//
//	testutil.T(t).Setup(queue)
package testutil
