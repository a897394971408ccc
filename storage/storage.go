// Package storage defines the durable storage capabilities the queue core
// depends on. The two interfaces are deliberately small so that unit tests
// can substitute in-memory fakes, and so the core never touches a concrete
// backend directly.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the requested key holds no value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrQuotaExceeded is returned by writes that fail because the backend
	// is out of space. Callers surface this distinctly so the UI can suggest
	// a remediation instead of a generic failure.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrUnavailable is returned when no durable backend is present. All
	// operations degrade to no-ops and callers fall back to inline storage.
	ErrUnavailable = errors.New("storage: backend unavailable")
)

// KeyValueStore holds small string-keyed documents, such as the serialized
// queue and the ignored message id set.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// BlobStore holds key-addressed binary payloads, used exclusively for
// outbound attachment bodies spilled out of the inline queue document.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Backend is a concrete storage driver providing both capabilities over one
// underlying database, plus the lifecycle and health hooks the daemon needs.
// The key-value and blob namespaces are isolated from each other.
type Backend interface {
	KV() KeyValueStore
	Blobs() BlobStore
	Ping() error
	Compact(ctx context.Context) error
	Close() error
}
