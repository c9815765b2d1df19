// Package resilience provides the fault-tolerance primitives used by the
// request runner.
//
//   - Bulkhead: a resizable concurrency limit. The runner resizes it on every
//     reachability transition; calls already admitted are never cancelled.
//   - Retry: retries an operation with exponential backoff.
//   - CircuitBreaker: fails fast while a host keeps failing at the transport
//     level.
//
// Combined, as the runner does it:
//
//	if err := bh.Acquire(ctx, maxWait); err != nil {
//	    return err
//	}
//	defer bh.Release()
//	return resilience.Retry(ctx, retryCfg, func(ctx context.Context, attempt int) (*transport.Result, error) {
//	    return resilience.Call(cb, func() (*transport.Result, error) {
//	        return tr.Execute(ctx, req)
//	    })
//	})
package resilience
