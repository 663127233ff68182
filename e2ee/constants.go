package e2ee

import "golang.org/x/crypto/chacha20poly1305"

const (
	// HKDFContext is the HKDF info string. Changing it makes every existing
	// envelope unreadable, so a new cipher suite must use a new version.
	HKDFContext = "letterbox-e2ee-v1"

	// KeySize is the size of X25519 public and private keys in bytes.
	KeySize = 32
	// SharedSecretSize is the size of an X25519 shared secret in bytes.
	SharedSecretSize = 32
	// SymmetricKeySize is the size of the derived AEAD key in bytes.
	SymmetricKeySize = chacha20poly1305.KeySize
	// NonceSize is the size of a ChaCha20-Poly1305 nonce in bytes.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the size of a Poly1305 authentication tag in bytes.
	TagSize = chacha20poly1305.Overhead
)
