package e2ee

import "errors"

var (
	// ErrDecryptionFailed is returned when the authentication tag does not
	// verify. No plaintext is ever returned alongside it.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidData is returned for malformed envelopes, including nonces
	// and tags of the wrong length.
	ErrInvalidData = errors.New("invalid envelope data")

	// ErrInvalidKeyMaterial is returned when a key has the wrong size or the
	// key agreement produces a degenerate shared secret.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)
