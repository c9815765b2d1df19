// Package eventually is a durable retry queue: requests are persisted,
// attempted in enqueue order while the network is reachable, and retried
// until they succeed, fail with a non-retryable error, or run out of
// attempts.
//
// Each entry moves through
//
//	pending -> attempting -> succeeded | pending (retryable) | failed
//
// and is removed from the store when it settles. Entries survive restarts;
// a new process re-attaches to one with Await.
//
// Every store mutation runs on a taskqueue.Queue, so concurrent enqueues,
// attempt bookkeeping and clears never interleave. The file store also guards
// each entry with the shared filelock table.
package eventually
