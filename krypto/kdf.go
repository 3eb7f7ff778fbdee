package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLength is the enforced salt length in bytes (128 bits).
	SaltLength = 16

	// MinIterations is the floor for the PBKDF2 iteration count. Derivation
	// silently clamps anything below it; existing vaults always decrypt with
	// the count stored in their own blob.
	MinIterations = 100_000

	// DefaultIterations is applied to newly created vaults. It may be raised
	// later without invalidating old vaults because the count travels inside
	// the persisted blob.
	DefaultIterations = 200_000

	// KeyLength is the derived key size in bytes (AES-256).
	KeyLength = 32
)

// DeriveKey stretches a master passphrase into a 32-byte key using PBKDF2
// with HMAC-SHA256. Identical inputs always yield the identical key and there
// is no error path for well-formed inputs. The caller owns the lifetime of
// both the passphrase bytes and the returned key and should wipe them as soon
// as the surrounding operation completes.
func DeriveKey(passphrase, salt []byte, iterations int) []byte {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return pbkdf2.Key(passphrase, salt, iterations, KeyLength, sha256.New)
}

// NewRandomSalt returns a cryptographically secure random salt of n bytes.
// Anything below SaltLength is rounded up to SaltLength.
func NewRandomSalt(n int) ([]byte, error) {
	if n < SaltLength {
		n = SaltLength
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Wipe overwrites sensitive byte slices in place to reduce lifetime in memory.
func Wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
