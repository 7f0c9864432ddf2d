package adaptive

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DefaultKeyInfo is the HKDF info string used when none is given.
const DefaultKeyInfo = "zephyrite wal value key v1"

// DeriveKey stretches secret into a KeySize key with HKDF-SHA256.
//
// The same secret, salt and info always yield the same key, so a log sealed
// under a secret can be reopened from configuration alone.
func DeriveKey(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("adaptive: empty secret")
	}
	if info == "" {
		info = DefaultKeyInfo
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}

// NewFromSecret derives a key from secret and returns a cipher of type t.
// An empty t selects Preferred().
func NewFromSecret(secret string, t CipherType) (Cipher, error) {
	key, err := DeriveKey([]byte(secret), nil, "")
	if err != nil {
		return nil, err
	}
	if t == "" {
		t = Preferred()
	}
	return NewWithType(key, t)
}
