package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxKeyLength is the maximum key length in bytes.
	MaxKeyLength = 1024

	// MaxValueSize is the maximum value size in bytes (1 MiB).
	MaxValueSize = 1 << 20

	// ReservedKeyPrefix marks keys reserved for internal metadata.
	ReservedKeyPrefix = "__zephyrite_"
)

// KeyPolicy configures key validation.
//
// The standard rules always apply. The Reject* toggles only take effect when
// Strict is set.
type KeyPolicy struct {
	Strict                   bool
	RejectPathSeparators     bool
	RejectDots               bool
	RejectRepeatedSeparators bool
}

// DefaultKeyPolicy returns the policy that applies the standard rules only.
func DefaultKeyPolicy() KeyPolicy {
	return KeyPolicy{}
}

// StrictKeyPolicy returns a strict policy with every extra rule enabled.
func StrictKeyPolicy() KeyPolicy {
	return KeyPolicy{
		Strict:                   true,
		RejectPathSeparators:     true,
		RejectDots:               true,
		RejectRepeatedSeparators: true,
	}
}

// ValidateKey checks key against the standard rules.
func ValidateKey(key string) error {
	return DefaultKeyPolicy().Validate(key)
}

// Validate checks key against the policy.
//
// The returned error is an ErrInvalidKey whose details name the first rule
// the key violates.
func (p KeyPolicy) Validate(key string) error {
	if reason := standardKeyViolation(key); reason != "" {
		return ErrInvalidKey.WithDetails(reason)
	}
	if !p.Strict {
		return nil
	}
	if p.RejectPathSeparators && strings.ContainsAny(key, `/\`) {
		return ErrInvalidKey.WithDetails("key cannot contain path separators in strict mode")
	}
	if p.RejectDots && strings.Contains(key, ".") {
		return ErrInvalidKey.WithDetails("key cannot contain dots in strict mode")
	}
	if p.RejectRepeatedSeparators && hasRepeatedSeparator(key) {
		return ErrInvalidKey.WithDetails("key cannot contain consecutive separators in strict mode")
	}
	return nil
}

func standardKeyViolation(key string) string {
	switch {
	case key == "":
		return "key cannot be empty"
	case len(key) > MaxKeyLength:
		return fmt.Sprintf("key too long: %d bytes (max %d)", len(key), MaxKeyLength)
	case !utf8.ValidString(key):
		return "key must be valid UTF-8"
	case hasControlByte(key):
		return "key contains control characters"
	case hasOuterWhitespace(key):
		return "key cannot start or end with whitespace"
	case strings.HasPrefix(key, ReservedKeyPrefix):
		return fmt.Sprintf("key cannot start with reserved prefix %q", ReservedKeyPrefix)
	case strings.Contains(key, ".."):
		return "key cannot contain '..' sequences"
	}
	return ""
}

func hasControlByte(key string) bool {
	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}

func hasOuterWhitespace(key string) bool {
	first, _ := utf8.DecodeRuneInString(key)
	last, _ := utf8.DecodeLastRuneInString(key)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}

func hasRepeatedSeparator(key string) bool {
	return strings.Contains(key, "::") ||
		strings.Contains(key, "--") ||
		strings.Contains(key, "__")
}

// ValidateValue checks that value fits within MaxValueSize.
func ValidateValue(value []byte) error {
	if len(value) > MaxValueSize {
		return ErrValueTooLarge.WithDetails(
			fmt.Sprintf("value is %d bytes (max %d)", len(value), MaxValueSize))
	}
	return nil
}
