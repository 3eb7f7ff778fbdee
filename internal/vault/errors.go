package vault

import "errors"

// Error taxonomy for vault operations. The service layer maps these to
// user-facing responses; the wording shown to the user for a wrong passphrase
// and for a corrupted ciphertext is identical by design.
var (
	// ErrAlreadyInitialized means setup was attempted while a vault file
	// exists. The caller must reset first.
	ErrAlreadyInitialized = errors.New("vault already initialised; reset it first")

	// ErrInvalidPassphrase covers every authenticated-decryption failure:
	// wrong passphrase, flipped ciphertext bytes, forged tag.
	ErrInvalidPassphrase = errors.New("unable to unlock vault with the given passphrase")

	// ErrStoreCorrupted means the on-disk blob does not parse at the format
	// level (unknown version byte, truncated framing). Only a reset recovers.
	ErrStoreCorrupted = errors.New("vault file is corrupted")

	// ErrNotFound means the operation expected a vault file that is absent.
	ErrNotFound = errors.New("no vault found")
)
