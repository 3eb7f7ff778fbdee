package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/config"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/session"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
	"github.com/Hussein-Mazeh/SolarDashboard/krypto"
	"github.com/Hussein-Mazeh/SolarDashboard/store"
)

// State is the lifecycle position of the vault as seen by one session.
type State string

const (
	// StateUninitialized means no vault file exists yet.
	StateUninitialized State = "uninitialized"
	// StateLocked means a vault file exists but this session has not
	// presented a valid passphrase since the process started.
	StateLocked State = "locked"
	// StateUnlocked means the calling session holds cached credentials.
	StateUnlocked State = "unlocked"
)

// ErrNoLegacyCredentials means migrate found nothing to import.
var ErrNoLegacyCredentials = errors.New("no legacy credentials to migrate")

// Status describes the vault for the session/API layer.
type Status struct {
	State              State `json:"state"`
	MigrationAvailable bool  `json:"migration_available"`
}

// Service is the vault lifecycle state machine. Mutating transitions
// (setup, reset, migrate) run under the store's mutation lock; unlock is a
// pure read of the vault file plus a cache write and needs no store lock.
type Service struct {
	store    *store.VaultStore
	sessions *session.Cache
	dataDir  string
	log      *slog.Logger
}

// New wires a lifecycle service over a data directory holding both the vault
// file and config.json.
func New(dataDir string, sessions *session.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store.NewVaultStore(dataDir),
		sessions: sessions,
		dataDir:  dataDir,
		log:      logger,
	}
}

// Sessions exposes the credential cache to the HTTP layer.
func (s *Service) Sessions() *session.Cache { return s.sessions }

// Status reports the lifecycle state for a session and whether a legacy
// plaintext credentials block is waiting to be migrated. Status never performs
// the migration itself; that rewrite is an explicit, logged transition.
func (s *Service) Status(sessionID string) (Status, error) {
	var st Status

	exists := s.store.Exists()
	switch {
	case !exists:
		st.State = StateUninitialized
	case s.sessions.Has(sessionID):
		st.State = StateUnlocked
	default:
		st.State = StateLocked
	}

	if !exists {
		cfg, err := config.Load(s.dataDir)
		if err != nil {
			return st, fmt.Errorf("inspect legacy config: %w", err)
		}
		_, st.MigrationAvailable = cfg.LegacyCredentials()
	}

	return st, nil
}

// Setup creates the vault from Uninitialized: fresh salt, derived key,
// encrypted record, atomic save. The passphrase policy (length, strength) is
// applied by the caller-facing layer before this call.
func (s *Service) Setup(rec vault.CredentialRecord, passphrase string) error {
	s.store.Lock()
	defer s.store.Unlock()
	return s.setupLocked(rec, passphrase)
}

func (s *Service) setupLocked(rec vault.CredentialRecord, passphrase string) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if s.store.Exists() {
		return vault.ErrAlreadyInitialized
	}

	pw := []byte(passphrase)
	defer krypto.Wipe(pw)

	blob, err := vault.Seal(rec, pw, krypto.DefaultIterations)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}

	if err := s.store.Save(blob); err != nil {
		return err
	}

	s.log.Info("vault created", "path", s.store.Path(), "iterations", blob.Iterations)
	return nil
}

// Unlock loads the blob, derives the key from the blob's own salt and
// iteration count, and decrypts. Success caches the credentials for the
// session. A wrong passphrase and a tampered ciphertext both come back as
// vault.ErrInvalidPassphrase; format-level damage as vault.ErrStoreCorrupted.
func (s *Service) Unlock(sessionID, passphrase string, ttl time.Duration) (vault.CredentialRecord, error) {
	blob, err := s.store.Load()
	if err != nil {
		return vault.CredentialRecord{}, err
	}

	pw := []byte(passphrase)
	defer krypto.Wipe(pw)

	rec, err := vault.Open(blob, pw)
	if err != nil {
		return vault.CredentialRecord{}, err
	}

	s.sessions.Put(sessionID, rec, ttl)
	return rec, nil
}

// Reset deletes the vault file and invalidates every cached session,
// returning the lifecycle to Uninitialized. There is no recovery path;
// deleting a vault that does not exist is still a successful reset.
func (s *Service) Reset() error {
	s.store.Lock()
	defer s.store.Unlock()

	if err := s.store.Delete(); err != nil {
		return err
	}
	s.sessions.InvalidateAll()

	s.log.Info("vault reset", "path", s.store.Path())
	return nil
}

// Migrate imports the legacy plaintext credentials block from config.json
// into a fresh vault and then scrubs the block from the config. The scrub
// renames the original file to a backup before stripping the plaintext, and
// runs only after the encrypted vault write is durable: if the save fails the
// legacy file stays untouched. A second run observes the existing vault and
// reports vault.ErrAlreadyInitialized.
func (s *Service) Migrate(passphrase string) error {
	s.store.Lock()
	defer s.store.Unlock()

	if s.store.Exists() {
		return vault.ErrAlreadyInitialized
	}

	cfg, err := config.Load(s.dataDir)
	if err != nil {
		return fmt.Errorf("load legacy config: %w", err)
	}
	rec, ok := cfg.LegacyCredentials()
	if !ok {
		return ErrNoLegacyCredentials
	}

	if err := s.setupLocked(rec, passphrase); err != nil {
		return err
	}

	if err := config.ScrubLegacyCredentials(s.dataDir); err != nil {
		return fmt.Errorf("scrub legacy credentials: %w", err)
	}

	s.log.Info("legacy credentials migrated into vault",
		"config", config.Path(s.dataDir),
		"backup", config.Path(s.dataDir)+config.BackupSuffix)
	return nil
}
