package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

const (
	// Filename is the application configuration file inside the data dir.
	Filename = "config.json"
	// BackupSuffix is appended to the pre-migration config backup.
	BackupSuffix = ".bak"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AutoOpenBrowser bool   `json:"auto_open_browser"`
}

// OutputConfig controls where exported data files land.
type OutputConfig struct {
	DataDir string `json:"data_dir"`
}

// LegacyPortalCredentials is the pre-vault plaintext credentials block. Old
// installations carried it directly in config.json; the migration adapter
// moves it into the encrypted vault and scrubs it from here.
type LegacyPortalCredentials struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PortalURL string `json:"portal_url"`
}

// Config is the on-disk application configuration.
type Config struct {
	Server ServerConfig             `json:"server"`
	Output OutputConfig             `json:"output"`
	Portal *LegacyPortalCredentials `json:"portal,omitempty"`
}

// Default returns the configuration applied when no file exists yet.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            5000,
			AutoOpenBrowser: true,
		},
		Output: OutputConfig{DataDir: "data"},
	}
}

// Path resolves the config file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, Filename)
}

// Load reads config.json from dir, falling back to defaults when the file is
// missing. Unset server fields are filled with defaults so older files keep
// working.
func Load(dir string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Output.DataDir == "" {
		cfg.Output.DataDir = "data"
	}

	return cfg, nil
}

// Save persists config.json atomically with restrictive permissions. The file
// may still contain plaintext credentials pre-migration, so it gets the same
// 0600 treatment as the vault itself.
func Save(dir string, cfg Config) error {
	if dir == "" {
		return errors.New("config directory not specified")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp config: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp config: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpPath, Path(dir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}

	return nil
}

// LegacyCredentials extracts the plaintext credentials block when every field
// is present. Partial blocks are ignored rather than half-migrated.
func (c Config) LegacyCredentials() (vault.CredentialRecord, bool) {
	if c.Portal == nil {
		return vault.CredentialRecord{}, false
	}
	if c.Portal.Username == "" || c.Portal.Password == "" || c.Portal.PortalURL == "" {
		return vault.CredentialRecord{}, false
	}
	return vault.CredentialRecord{
		Username:  c.Portal.Username,
		Password:  c.Portal.Password,
		PortalURL: c.Portal.PortalURL,
	}, true
}

// ScrubLegacyCredentials removes the plaintext block from config.json after a
// successful vault write. The original file is renamed to config.json.bak
// first; only once that backup exists is a credential-free config written in
// its place. If anything fails before the rename, the legacy file is left
// untouched.
func ScrubLegacyCredentials(dir string) error {
	cfg, err := Load(dir)
	if err != nil {
		return err
	}
	if cfg.Portal == nil {
		return nil
	}

	cfgPath := Path(dir)
	backupPath := cfgPath + BackupSuffix
	if err := os.Rename(cfgPath, backupPath); err != nil {
		return fmt.Errorf("back up config: %w", err)
	}

	cfg.Portal = nil
	if err := Save(dir, cfg); err != nil {
		return fmt.Errorf("rewrite config without credentials: %w", err)
	}

	return nil
}
