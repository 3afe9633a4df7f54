package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// User metadata keys stamped on stored objects so a bucket listing can be
// traced back to sessions without opening every object.
const (
	MetaSessionID = "session-id"
	MetaTarget    = "target"
	MetaStatus    = "status"
	MetaRowCount  = "row-count"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

type PutOptions struct {
	ContentType string
	// Metadata keys must be lower-case letters, digits or dashes.
	Metadata map[string]string
}

// ObjectStore holds session snapshots and archived result sets.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
