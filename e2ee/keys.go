package e2ee

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/dh/x25519"
)

// GenerateKeyPair returns a new X25519 key pair as raw bytes.
func GenerateKeyPair() (publicKey []byte, privateKey []byte, err error) {
	var secret, public x25519.Key
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	x25519.KeyGen(&public, &secret)

	privateKey = make([]byte, KeySize)
	copy(privateKey, secret[:])
	clear(secret[:])

	return public[:], privateKey, nil
}

// PublicKey derives the public half of an X25519 private key.
func PublicKey(privateKey []byte) ([]byte, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: private key got %d bytes, want %d", ErrInvalidKeyMaterial, len(privateKey), KeySize)
	}

	var secret, public x25519.Key
	copy(secret[:], privateKey)
	defer clear(secret[:])
	x25519.KeyGen(&public, &secret)

	return public[:], nil
}

// Agree computes the X25519 shared secret between a private key and a peer
// public key. Low-order peer keys are rejected.
func Agree(privateKey, peerPublicKey []byte) ([]byte, error) {
	if len(privateKey) != KeySize {
		return nil, fmt.Errorf("%w: private key got %d bytes, want %d", ErrInvalidKeyMaterial, len(privateKey), KeySize)
	}
	if len(peerPublicKey) != KeySize {
		return nil, fmt.Errorf("%w: public key got %d bytes, want %d", ErrInvalidKeyMaterial, len(peerPublicKey), KeySize)
	}

	var secret, peer, shared x25519.Key
	copy(secret[:], privateKey)
	copy(peer[:], peerPublicKey)
	defer clear(secret[:])

	if ok := x25519.Shared(&shared, &secret, &peer); !ok {
		return nil, fmt.Errorf("%w: low order public key", ErrInvalidKeyMaterial)
	}

	return shared[:], nil
}
