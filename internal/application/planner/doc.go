// Package planner partitions a set of declared steps into an ordered sequence
// of concurrency-safe waves. It validates dependency references, detects
// cycles before any execution starts, and assigns each step to the earliest
// wave consistent with all of its dependencies.
package planner
