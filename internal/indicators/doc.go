// Package indicators owns HFP indicator state and validation.
//
// Ownership boundary:
// - HF-reported optional indicators (enhanced safety, battery level)
// - AG indicator-reporting subscription flags
// - AG indicator status snapshot and fixed wire indices
//
// No I/O and no locking; callers own synchronization.
package indicators
