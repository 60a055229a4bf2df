// Package blob stores document files by slash-separated key, either in a
// local directory tree or in an S3-compatible bucket.
package blob

import "context"

// Store is the minimal object API used by the document store.
// Get returns common.ErrorNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// List returns all keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Dirs returns the top-level key segments, sorted.
	Dirs(ctx context.Context) ([]string, error)
}
