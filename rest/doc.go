// Package rest defines the request and response descriptors exchanged by the
// restkit runner, controller and durable queue.
//
// A Request is immutable once built and carries a stable identifier that
// survives Clone, With and the snapshot codec, so it can be used as a storage
// key. A Response is the single result type of every execution path; it is
// either successful, failed (Err set) or cancelled.
package rest
