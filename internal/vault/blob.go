package vault

import (
	"encoding/binary"
	"fmt"

	"github.com/Hussein-Mazeh/SolarDashboard/krypto"
)

// BlobVersion is the current on-disk format version.
const BlobVersion byte = 1

// EncryptedBlob is the sole persisted representation of a CredentialRecord.
// The salt and iteration count ride along with the ciphertext so that future
// KDF hardening never breaks an existing vault.
//
// Wire layout:
//
//	version:1 | salt_len:1 | salt:N | iterations:4 (big endian) | nonce_len:1 | nonce:M | ciphertext+tag
type EncryptedBlob struct {
	Version    byte
	Salt       []byte
	Iterations uint32
	Nonce      []byte
	Ciphertext []byte
}

// minCiphertextLen is the GCM tag size; an authenticated empty payload can
// never be shorter than its tag.
const minCiphertextLen = 16

// Marshal serializes the blob into its wire layout.
func (b EncryptedBlob) Marshal() ([]byte, error) {
	if len(b.Salt) == 0 || len(b.Salt) > 255 {
		return nil, fmt.Errorf("invalid salt length %d", len(b.Salt))
	}
	if len(b.Nonce) == 0 || len(b.Nonce) > 255 {
		return nil, fmt.Errorf("invalid nonce length %d", len(b.Nonce))
	}
	if b.Iterations < krypto.MinIterations {
		return nil, fmt.Errorf("iteration count %d below minimum %d", b.Iterations, krypto.MinIterations)
	}
	if len(b.Ciphertext) < minCiphertextLen {
		return nil, fmt.Errorf("ciphertext too short (%d bytes)", len(b.Ciphertext))
	}

	out := make([]byte, 0, 1+1+len(b.Salt)+4+1+len(b.Nonce)+len(b.Ciphertext))
	out = append(out, b.Version)
	out = append(out, byte(len(b.Salt)))
	out = append(out, b.Salt...)
	out = binary.BigEndian.AppendUint32(out, b.Iterations)
	out = append(out, byte(len(b.Nonce)))
	out = append(out, b.Nonce...)
	out = append(out, b.Ciphertext...)
	return out, nil
}

// UnmarshalBlob parses the wire layout. Any framing damage, including an
// unrecognized version byte, surfaces as ErrStoreCorrupted.
func UnmarshalBlob(data []byte) (EncryptedBlob, error) {
	var b EncryptedBlob

	if len(data) < 2 {
		return b, ErrStoreCorrupted
	}
	b.Version = data[0]
	if b.Version != BlobVersion {
		return b, ErrStoreCorrupted
	}

	saltLen := int(data[1])
	rest := data[2:]
	if saltLen == 0 || len(rest) < saltLen+4+1 {
		return b, ErrStoreCorrupted
	}
	b.Salt = append([]byte(nil), rest[:saltLen]...)
	rest = rest[saltLen:]

	b.Iterations = binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	nonceLen := int(rest[0])
	rest = rest[1:]
	if nonceLen == 0 || len(rest) < nonceLen+minCiphertextLen {
		return b, ErrStoreCorrupted
	}
	b.Nonce = append([]byte(nil), rest[:nonceLen]...)
	b.Ciphertext = append([]byte(nil), rest[nonceLen:]...)

	return b, nil
}

// Seal encrypts a record under the passphrase with a fresh salt and returns
// the blob ready for persistence. The derived key lives only inside this call.
func Seal(rec CredentialRecord, passphrase []byte, iterations int) (EncryptedBlob, error) {
	if iterations < krypto.MinIterations {
		iterations = krypto.MinIterations
	}

	salt, err := krypto.NewRandomSalt(krypto.SaltLength)
	if err != nil {
		return EncryptedBlob{}, err
	}

	plaintext, err := EncodeRecord(rec)
	if err != nil {
		return EncryptedBlob{}, err
	}
	defer krypto.Wipe(plaintext)

	key := krypto.DeriveKey(passphrase, salt, iterations)
	defer krypto.Wipe(key)

	nonce, ciphertext, err := krypto.EncryptAESGCM(key, plaintext)
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("encrypt record: %w", err)
	}

	return EncryptedBlob{
		Version:    BlobVersion,
		Salt:       salt,
		Iterations: uint32(iterations),
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open derives the key from the blob's own salt and iteration count and
// decrypts the record. Authentication failures come back as
// ErrInvalidPassphrase regardless of whether the passphrase was wrong or the
// ciphertext was tampered with.
func Open(b EncryptedBlob, passphrase []byte) (CredentialRecord, error) {
	if b.Version != BlobVersion {
		return CredentialRecord{}, ErrStoreCorrupted
	}

	key := krypto.DeriveKey(passphrase, b.Salt, int(b.Iterations))
	defer krypto.Wipe(key)

	plaintext, err := krypto.DecryptAESGCM(key, b.Nonce, b.Ciphertext)
	if err != nil {
		return CredentialRecord{}, ErrInvalidPassphrase
	}
	defer krypto.Wipe(plaintext)

	return DecodeRecord(plaintext)
}
