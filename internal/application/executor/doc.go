// Package executor runs individual update steps with timeout, retry, hook
// and cache semantics. It never decides ordering; that is the scheduler's
// job.
package executor
