// Package domain contains the core types of the update execution engine:
// steps, results, run summaries and the work/hook capabilities callers
// implement per package-manager step.
package domain
