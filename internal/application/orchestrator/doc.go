// Package orchestrator implements run lifecycle management.
//
// The manager coordinates run execution by:
//   - Resolving plan options and validating steps into dependency waves
//   - Managing run lifecycle (submit, status, cancel, shutdown)
//   - Publishing run and step events to the event bus
//   - Persisting finalized run summaries via state storage
//
// Wave validation rejects unknown dependencies and cycles before any step
// runs.
package orchestrator
