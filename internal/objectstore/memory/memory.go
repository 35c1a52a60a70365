// Package memory provides an in-memory object store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"jobseries/internal/objectstore"
	"sort"
	"strings"
	"sync"
)

// Store keeps objects in memory. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	buckets  map[string]map[string][]byte
	listErr  error
	failKeys map[string]error
}

// New creates an empty store with the given buckets.
func New(buckets ...string) *Store {
	s := &Store{
		buckets:  make(map[string]map[string][]byte),
		failKeys: make(map[string]error),
	}
	for _, b := range buckets {
		s.buckets[b] = make(map[string][]byte)
	}
	return s
}

// Put stores data under bucket/key, creating the bucket if needed.
func (s *Store) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = append([]byte(nil), data...)
}

// FailListing makes ListBuckets and ListObjects return err. Nil clears it.
func (s *Store) FailListing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailReads makes the body of key fail with err after its first byte.
func (s *Store) FailReads(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKeys[key] = err
}

func (s *Store) ListBuckets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) ListObjects(_ context.Context, bucket, prefix string) ([]objectstore.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrBucketNotFound, bucket)
	}

	var out []objectstore.Object
	for key, data := range objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, objectstore.Object{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) GetObject(_ context.Context, bucket, key string) (*objectstore.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", objectstore.ErrObjectNotFound, bucket, key)
	}

	var body io.Reader = bytes.NewReader(data)
	if err, failing := s.failKeys[key]; failing {
		body = io.MultiReader(bytes.NewReader(data[:min(1, len(data))]), &errReader{err: err})
	}
	return &objectstore.Blob{
		Key:  key,
		Size: int64(len(data)),
		Body: io.NopCloser(body),
	}, nil
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}
