package e2ee

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyAgreer performs X25519 agreement with a private key it never exposes.
type KeyAgreer interface {
	PrivateAgree(ctx context.Context, ephemeralPublicKey []byte) ([]byte, error)
}

// Seal encrypts plaintext for the holder of recipientPublicKey.
func Seal(plaintext, recipientPublicKey []byte) (*Envelope, error) {
	if len(recipientPublicKey) != KeySize {
		return nil, fmt.Errorf("%w: recipient public key got %d bytes, want %d", ErrInvalidKeyMaterial, len(recipientPublicKey), KeySize)
	}

	ephemeralPublic, ephemeralPrivate, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer clear(ephemeralPrivate)

	shared, err := Agree(ephemeralPrivate, recipientPublicKey)
	if err != nil {
		return nil, err
	}
	defer clear(shared)

	key, err := deriveKey(shared)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return &Envelope{
		Ciphertext:         sealed[:split:split],
		EphemeralPublicKey: ephemeralPublic,
		Nonce:              nonce,
		AuthTag:            sealed[split:],
	}, nil
}

// Open decrypts an envelope using the recipient's key agreer. Errors from the
// agreer are returned unchanged so callers can tell a missing key apart from
// a forged envelope.
func Open(ctx context.Context, env *Envelope, agreer KeyAgreer) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}

	shared, err := agreer.PrivateAgree(ctx, env.EphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	defer clear(shared)

	key, err := deriveKey(shared)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// SealToString seals plaintext and encodes the envelope in one step.
func SealToString(plaintext, recipientPublicKey []byte) (string, error) {
	env, err := Seal(plaintext, recipientPublicKey)
	if err != nil {
		return "", err
	}
	return env.Encode()
}

// OpenString decodes and opens an encoded envelope.
func OpenString(ctx context.Context, encoded string, agreer KeyAgreer) ([]byte, error) {
	env, err := Decode(encoded)
	if err != nil {
		return nil, err
	}
	return Open(ctx, env, agreer)
}

func deriveKey(shared []byte) ([]byte, error) {
	if len(shared) != SharedSecretSize {
		return nil, fmt.Errorf("%w: shared secret got %d bytes, want %d", ErrInvalidKeyMaterial, len(shared), SharedSecretSize)
	}

	reader := hkdf.New(sha256.New, shared, nil, []byte(HKDFContext))
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}
