package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPresignTTL is how long presigned report links stay valid.
const DefaultPresignTTL = time.Hour

// ErrNotFound is returned when a key, or any key under a prefix, does not exist.
var ErrNotFound = errors.New("object not found")

// UpstreamAPIError wraps a failure reported by the object store service.
type UpstreamAPIError struct {
	Op  string
	Key string
	Err error
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("object store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *UpstreamAPIError) Unwrap() error {
	return e.Err
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Store is the object store contract used by scans, approvals and disables.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Latest(ctx context.Context, prefix string) (string, error)
}

// Newest returns the most recently modified object whose key ends with suffix.
// An empty suffix matches every object.
func Newest(objects []ObjectInfo, suffix string) (ObjectInfo, bool) {
	var newest ObjectInfo
	found := false
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, suffix) {
			continue
		}
		if !found || obj.LastModified.After(newest.LastModified) {
			newest = obj
			found = true
		}
	}
	return newest, found
}
