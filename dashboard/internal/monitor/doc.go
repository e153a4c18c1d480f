// Package monitor is the polling and reconciliation core of fleetwatch.
//
// A Monitor owns all fleet state on a single event-loop goroutine (Run).
// Public methods post commands to the loop and wait for them to be applied.
// Network calls to the switch run in short-lived goroutines and post their
// completions back to the loop, tagged with a dispatch sequence number; only
// the most recently dispatched poll may update state, and nothing applies
// while the monitor is idle.
//
// The poll timer runs only while the gate is open: the monitor has been
// started, a viewer is present, the network is available, and the operator
// has not suspended polling (visibility.go).
//
// Readers get a consistent copy of the state through Status, and
// subscribers receive snapshot, connectivity and activity notifications on
// the loop goroutine.
package monitor
