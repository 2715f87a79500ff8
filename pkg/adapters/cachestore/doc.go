// Package cachestore provides persistent cache backing implementations.
//
// Implementations:
//   - redis: Redis with JSON payloads, surviving process restarts
//   - memory: In-memory for testing
package cachestore
