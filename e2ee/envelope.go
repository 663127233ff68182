package e2ee

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is a sealed payload for exactly one recipient. It carries no
// key material that identifies the sender.
type Envelope struct {
	Ciphertext         []byte `json:"ciphertext"`
	EphemeralPublicKey []byte `json:"ephemeralPublicKey"`
	Nonce              []byte `json:"nonce"`
	AuthTag            []byte `json:"authTag"`
}

// Encode serializes the envelope as base64 encoded JSON so it can be kept in
// text oriented document stores.
func (e *Envelope) Encode() (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses the output of Encode. Any structural problem is reported as
// ErrInvalidData.
func Decode(s string) (*Envelope, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrInvalidData, err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrInvalidData, err)
	}

	if err := env.validate(); err != nil {
		return nil, err
	}

	return &env, nil
}

func (e *Envelope) validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrInvalidData)
	}
	if len(e.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce got %d bytes, want %d", ErrInvalidData, len(e.Nonce), NonceSize)
	}
	if len(e.AuthTag) != TagSize {
		return fmt.Errorf("%w: auth tag got %d bytes, want %d", ErrInvalidData, len(e.AuthTag), TagSize)
	}
	if len(e.EphemeralPublicKey) != KeySize {
		return fmt.Errorf("%w: ephemeral public key got %d bytes, want %d", ErrInvalidData, len(e.EphemeralPublicKey), KeySize)
	}
	return nil
}
