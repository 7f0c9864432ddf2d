// Package adaptive provides the AEAD ciphers used to seal values at rest.
//
// Supported algorithms:
//
//   - AES-256-GCM: preferred where hardware AES is available
//   - ChaCha20-Poly1305: fallback elsewhere (golang.org/x/crypto)
//
// Keys are 32 bytes, either supplied directly or derived from a configured
// secret with HKDF-SHA256.
//
// Usage:
//
//	c, err := adaptive.NewFromSecret(secret, "")
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
