package keyvault

import "errors"

var (
	// ErrKeyNotFound is returned when no private key has been created yet or
	// the key was deleted.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyStorageFailure wraps any error returned by the secure storage.
	ErrKeyStorageFailure = errors.New("key storage failure")

	// ErrNotStored is returned by SecureStorage implementations when nothing
	// is stored under a service tag.
	ErrNotStored = errors.New("nothing stored under service tag")
)
