// Package slc owns the HFP service level connection dispatcher.
//
// Ownership boundary:
// - frame intake from the byte channel and decode
// - classification and procedure dispatch through the Registry
// - SLC lifecycle: initialization gate, fatal reset, garbage collection
//
// Lifecycle order:
// - unconnected -> uninitialized -> initialized
//
// - disconnected is terminal and reachable from any connected phase.
//
// - any error while SLC initialization is the active procedure resets the
//   whole Connection to unconnected.
//
// A Connection is owned by one goroutine; it does no locking.
package slc
