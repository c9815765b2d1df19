// Package reachability tracks the device's network reachability and notifies
// listeners of transitions.
//
// The Monitor holds the current Status; state is fed either by a Prober
// (which dials a probe address and classifies the outbound interface) or
// directly through Update, which tests and platform integrations use.
package reachability
