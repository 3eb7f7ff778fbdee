package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CredentialRecord is the portal login triple guarded by the vault. It is
// serialized exactly once, as the plaintext fed into AES-GCM, and must never
// be written to disk or a log in any other form.
type CredentialRecord struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PortalURL string `json:"portal_url"`
}

// Validate checks the fields a record needs before it can be encrypted.
func (r CredentialRecord) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if strings.TrimSpace(r.PortalURL) == "" {
		return errors.New("portal URL is required")
	}
	return nil
}

// EncodeRecord serializes a record for encryption.
func EncodeRecord(r CredentialRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses decrypted plaintext back into a record. A payload that
// authenticated but does not parse indicates a damaged vault.
func DecodeRecord(data []byte) (CredentialRecord, error) {
	var r CredentialRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return CredentialRecord{}, ErrStoreCorrupted
	}
	return r, nil
}
