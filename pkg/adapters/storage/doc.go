// Package storage provides run summary storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: in-memory map for single-process deployments and tests
package storage
