// Package module manages the lifecycle of the long-running parts of a restkit
// client: the reachability prober, the durable queue drain loop and cache
// backends holding connections.
//
// Modules start in registration order and stop in reverse order.
package module
