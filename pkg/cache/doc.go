// Package cache shields repeated external queries behind a time-bounded
// key/value store with single-flight semantics and optional persistent
// backing.
package cache
