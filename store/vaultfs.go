package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

const vaultFilename = "credentials.vault"

// Paths locates vault artifacts on disk.
type Paths struct {
	Dir string
}

// VaultPath resolves the encrypted credentials file path.
func (p Paths) VaultPath() string {
	return filepath.Join(p.Dir, vaultFilename)
}

func (p Paths) ensureDir() error {
	if p.Dir == "" {
		return errors.New("vault directory not specified")
	}
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	return nil
}

// VaultStore persists at most one EncryptedBlob. Mutating sequences
// (setup, reset, migrate) are serialized by Lock/Unlock; plain loads may run
// concurrently.
type VaultStore struct {
	paths Paths
	mu    sync.Mutex
}

// NewVaultStore returns a store rooted at dir.
func NewVaultStore(dir string) *VaultStore {
	return &VaultStore{paths: Paths{Dir: dir}}
}

// Lock takes the store-wide mutation lock.
func (s *VaultStore) Lock() { s.mu.Lock() }

// Unlock releases the store-wide mutation lock.
func (s *VaultStore) Unlock() { s.mu.Unlock() }

// Path returns the vault file location, mainly for status and logging.
func (s *VaultStore) Path() string { return s.paths.VaultPath() }

// Exists reports whether a vault file is present.
func (s *VaultStore) Exists() bool {
	_, err := os.Stat(s.paths.VaultPath())
	return err == nil
}

// Save persists the blob atomically with restrictive permissions: the wire
// bytes are written to a temp file in the same directory, flushed, then
// renamed over the final path so a crash mid-write never leaves a truncated
// vault behind.
func (s *VaultStore) Save(b vault.EncryptedBlob) error {
	if err := s.paths.ensureDir(); err != nil {
		return err
	}

	data, err := b.Marshal()
	if err != nil {
		return fmt.Errorf("encode vault blob: %w", err)
	}

	tmp, err := os.CreateTemp(s.paths.Dir, "vault-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp vault: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp vault: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp vault: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp vault: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp vault: %w", err)
	}

	if err := os.Rename(tmpPath, s.paths.VaultPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace vault: %w", err)
	}

	return nil
}

// Load reads and parses the persisted blob. A missing file maps to
// vault.ErrNotFound; framing damage maps to vault.ErrStoreCorrupted.
func (s *VaultStore) Load() (vault.EncryptedBlob, error) {
	data, err := os.ReadFile(s.paths.VaultPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vault.EncryptedBlob{}, vault.ErrNotFound
		}
		return vault.EncryptedBlob{}, fmt.Errorf("read vault: %w", err)
	}

	return vault.UnmarshalBlob(data)
}

// Delete removes the vault file. Deleting a vault that does not exist is not
// an error; reset must be idempotent.
func (s *VaultStore) Delete() error {
	if err := os.Remove(s.paths.VaultPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete vault: %w", err)
	}
	return nil
}
