// Package scheduler drives dependency waves through the step executor and
// aggregates step outcomes into a single run summary.
//
// The model is wave-barrier: all steps of a wave run concurrently, and the
// scheduler joins at the wave boundary before starting the next one. This is
// what enforces the dependency invariant: a step never starts before all of
// its dependencies have completed in an earlier wave. Dependency edges are
// ordering constraints only; a failed dependency does not gate its
// dependents.
package scheduler
