package keyvault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zlnvch/letterbox/e2ee"
)

const DefaultServiceTag = "letterbox.identity"

// ErrInvalidKeyMaterial is shared with e2ee so callers can match either.
var ErrInvalidKeyMaterial = e2ee.ErrInvalidKeyMaterial

// Vault owns the device's long-term X25519 private key. The private key
// never leaves the vault; callers only get the public key and agreement
// results.
type Vault struct {
	storage    SecureStorage
	serviceTag string

	// Agreements hold the read lock, creation and deletion the write lock.
	mu sync.RWMutex
}

func New(storage SecureStorage, serviceTag string) *Vault {
	if serviceTag == "" {
		serviceTag = DefaultServiceTag
	}
	return &Vault{storage: storage, serviceTag: serviceTag}
}

// GetOrCreatePublicKey returns the public half of the stored key pair,
// generating and storing a new pair first if the vault is empty.
func (v *Vault) GetOrCreatePublicKey(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	privateKey, err := v.load(ctx)
	if err == nil {
		defer clear(privateKey)
		return e2ee.PublicKey(privateKey)
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	publicKey, privateKey, err := e2ee.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer clear(privateKey)

	if err := v.storage.Store(ctx, v.serviceTag, privateKey); err != nil {
		return nil, fmt.Errorf("%w: store: %w", ErrKeyStorageFailure, err)
	}

	return publicKey, nil
}

// PrivateAgree computes the shared secret between the stored private key and
// the given ephemeral public key.
func (v *Vault) PrivateAgree(ctx context.Context, ephemeralPublicKey []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	privateKey, err := v.load(ctx)
	if err != nil {
		return nil, err
	}
	defer clear(privateKey)

	return e2ee.Agree(privateKey, ephemeralPublicKey)
}

// DeletePrivateKey destroys the stored private key. It waits for in-flight
// agreements to finish.
func (v *Vault) DeletePrivateKey(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.storage.Delete(ctx, v.serviceTag); err != nil && !errors.Is(err, ErrNotStored) {
		return fmt.Errorf("%w: delete: %w", ErrKeyStorageFailure, err)
	}
	return nil
}

func (v *Vault) load(ctx context.Context) ([]byte, error) {
	privateKey, err := v.storage.Load(ctx, v.serviceTag)
	if errors.Is(err, ErrNotStored) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrKeyStorageFailure, err)
	}
	if len(privateKey) != e2ee.KeySize {
		clear(privateKey)
		return nil, fmt.Errorf("%w: stored key got %d bytes, want %d", ErrInvalidKeyMaterial, len(privateKey), e2ee.KeySize)
	}
	return privateKey, nil
}
