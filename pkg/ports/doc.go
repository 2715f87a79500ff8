// Package ports defines the boundary contracts between the execution engine
// and its external collaborators: cache backing stores, event buses, metrics
// collectors and run-summary storage.
package ports
