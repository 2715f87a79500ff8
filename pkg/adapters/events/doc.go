// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: in-process fan-out for single-process deployments and tests
package events
