// Package metadata is the client's durable key/value storage. It backs the
// session store the way browser local storage backed the web client:
// string keys, string values, whole-store clear on logout.
package metadata

import "context"

type Repository interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set inserts or overwrites the key.
	Set(ctx context.Context, key string, value string) error
	// Delete removes the key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
	// Clear removes every key.
	Clear(ctx context.Context) error
	// Atomic runs fn with a repository whose writes commit together or not
	// at all.
	Atomic(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
