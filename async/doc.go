// Package async provides the single-settlement result type used by every
// asynchronous restkit operation.
//
// A Future settles exactly once with a value and an error. Callers either block
// with Await, select on Done, or chain a continuation with Then.
//
//	f := async.Go(ctx, func(ctx context.Context) (int, error) { return 42, nil })
//	v, err := f.Await(ctx)
package async
