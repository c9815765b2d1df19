// Package runner executes requests against a transport under a concurrency
// cap that follows network reachability.
//
// The cap is taken from Config.Capacity for the monitor's current status and
// is resized on every transition. A shrink never interrupts admitted
// requests; it only delays new ones. When a transport call times out the
// request's TimeoutPolicy decides what happens next:
//
//   - TimeoutNone surfaces a TIMEOUT error.
//   - TimeoutRetry tries again, up to the request's retry count.
//   - TimeoutStopExecution produces no result at all. Run returns nil and
//     the future of RunAsync never settles.
//
// Cancelling the context yields a cancelled response rather than an error.
package runner
