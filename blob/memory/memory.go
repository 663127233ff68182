package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zlnvch/letterbox/blob"
)

type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob.Blob
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]blob.Blob)}
}

func (m *MemoryBlobStore) Put(ctx context.Context, b blob.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[b.Path]; ok {
		return blob.ErrBlobExists
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.Data = slices.Clone(b.Data)
	m.blobs[b.Path] = b
	return nil
}

func (m *MemoryBlobStore) Get(ctx context.Context, path string) (blob.Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[path]
	if !ok {
		return blob.Blob{}, blob.ErrBlobNotFound
	}
	b.Data = slices.Clone(b.Data)
	return b, nil
}

func (m *MemoryBlobStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, path)
	return nil
}

func (m *MemoryBlobStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, blob.ErrInvalidPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for path := range m.blobs {
		if strings.HasPrefix(path, prefix) {
			delete(m.blobs, path)
			n++
		}
	}
	return n, nil
}

// Len reports how many blobs are stored.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
