// Package transfer copies one secret from a source store to a destination
// store.
//
// An Orchestrator fetches the source record through its own retry executor,
// derives the destination record from it, and writes that record through a
// second executor with an independent attempt budget. A fetch failure ends
// the transfer before anything is written. A write failure is reported with
// the destination name and attempt count; writes are upserts, so running the
// whole transfer again is safe.
package transfer
