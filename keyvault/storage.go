package keyvault

import (
	"context"
	"sync"
)

// SecureStorage persists private key bytes under a service tag. Load must
// return ErrNotStored when the tag is absent and any other error only for
// real failures.
type SecureStorage interface {
	Store(ctx context.Context, serviceTag string, privateKey []byte) error
	Load(ctx context.Context, serviceTag string) ([]byte, error)
	Delete(ctx context.Context, serviceTag string) error
}

// MemoryStorage keeps keys in process memory only.
type MemoryStorage struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{keys: make(map[string][]byte)}
}

func (m *MemoryStorage) Store(ctx context.Context, serviceTag string, privateKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[serviceTag] = append([]byte(nil), privateKey...)
	return nil
}

func (m *MemoryStorage) Load(ctx context.Context, serviceTag string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[serviceTag]
	if !ok {
		return nil, ErrNotStored
	}
	return append([]byte(nil), key...), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, serviceTag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[serviceTag]; ok {
		clear(key)
		delete(m.keys, serviceTag)
	}
	return nil
}
