// Package kv is the durable key-value storage the stores persist into.
// Each key holds one complete serialized collection; writes replace the
// whole value.
package kv

import "context"

// Storage is the contract the observation and theme stores depend on.
type Storage interface {
	// Get returns the raw value for key. ok is false when the key was never written.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set replaces the value for key and returns once it is durable.
	Set(ctx context.Context, key string, value []byte) error
}
