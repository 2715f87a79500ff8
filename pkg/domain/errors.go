package domain

import "errors"

// Configuration errors abort a run before any step executes.
var (
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCyclicDependency  = errors.New("cyclic dependency")
)

// Per-step errors are captured into that step's StepResult and never
// propagate as run-level failures.
var (
	ErrTimeout = errors.New("step timed out")
)

// Error kind labels recorded in StepResult.ErrorKind.
const (
	ErrorKindTimeout      = "Timeout"
	ErrorKindStepFailure  = "StepFailure"
	ErrorKindCacheCompute = "CacheComputeError"
)

// Skip reasons recorded in ResultMeta.SkipReason.
const (
	SkipReasonConfigured    = "skipped by configuration"
	SkipReasonStopOnFailure = "stop on first failure"
	SkipReasonCanceled      = "canceled"
)
