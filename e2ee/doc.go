// Package e2ee seals letter bodies and attachments for a single recipient.
//
// Every envelope uses a fresh X25519 ephemeral key pair. The shared secret
// is expanded with HKDF-SHA256 (empty salt, versioned info string) into a
// ChaCha20-Poly1305 key, and the ephemeral secret is discarded as soon as
// the envelope is produced. Only the recipient's private key together with
// the envelope's ephemeral public key can open it again.
package e2ee
