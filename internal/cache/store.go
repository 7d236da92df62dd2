package cache

import (
	"context"
	"errors"
)

// ErrStore wraps every failure reading or writing the backing store.
var ErrStore = errors.New("cache: store failure")

// Store persists serialized responses under an opaque key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored value and true, or false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put inserts or overwrites the value for key.
	Put(ctx context.Context, key string, value []byte) error
}

// Stats summarizes the contents of a store.
type Stats struct {
	Entries int64
	Bytes   int64
}

// StatsReporter is an optional interface for stores that can summarize
// their contents.
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}
