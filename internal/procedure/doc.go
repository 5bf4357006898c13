// Package procedure owns the per-kind HFP procedure state machines.
//
// Ownership boundary:
// - the closed Marker set and command classification
// - the Request and AgUpdate value sets exchanged with the driver
// - SlcState, lent exclusively to one procedure per dispatch
//
// A procedure never retains the *SlcState it is handed.
package procedure
