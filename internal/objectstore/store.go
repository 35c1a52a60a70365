// Package objectstore defines the object storage contract used for job output.
package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrBucketNotFound is returned when the bucket does not exist.
var ErrBucketNotFound = errors.New("bucket not found")

// Object describes one stored object.
type Object struct {
	Key  string `json:"name"`
	Size int64  `json:"size"`
}

// Blob is an open object body. The caller must close Body.
type Blob struct {
	Key  string
	Size int64 // -1 when the store did not report a length
	Body io.ReadCloser
}

// Name returns the last path element of the key.
func (b *Blob) Name() string {
	return path.Base(b.Key)
}

// Store lists and fetches objects.
type Store interface {
	ListBuckets(ctx context.Context) ([]string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
	GetObject(ctx context.Context, bucket, key string) (*Blob, error)
}
