package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const gcmNonceSize = 12

// ErrIntegrity is the single failure mode for decryption. A wrong key,
// flipped ciphertext bytes and a forged tag are indistinguishable on purpose
// so that callers cannot build a passphrase oracle out of the error text.
var ErrIntegrity = errors.New("integrity check failed")

// EncryptAESGCM encrypts plaintext using AES-256-GCM, returning the nonce and
// ciphertext (with the auth tag appended). The nonce is generated internally
// from crypto/rand on every call; there is no way for a caller to supply one,
// which rules out nonce reuse under a given key by construction.
func EncryptAESGCM(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, errors.New("aes-gcm requires a 32-byte key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce = make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// DecryptAESGCM decrypts ciphertext produced by EncryptAESGCM. Every
// authentication failure surfaces as ErrIntegrity and never as partial
// plaintext.
func DecryptAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, errors.New("aes-gcm requires a 32-byte key")
	}
	if len(nonce) != gcmNonceSize {
		return nil, ErrIntegrity
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
