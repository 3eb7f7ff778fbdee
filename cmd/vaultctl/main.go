package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Hussein-Mazeh/SolarDashboard/auth"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/service"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/session"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "status":
		if err := runStatus(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "setup":
		if err := runSetup(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "check":
		if err := runCheck(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "reset":
		if err := runReset(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "migrate":
		if err := runMigrate(os.Args[2:]); err != nil {
			handleError(err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: vaultctl <command> [flags]

commands:
  status   show vault lifecycle state
  setup    create a new vault interactively
  check    verify the master passphrase unlocks the vault
  reset    delete the vault (irreversible)
  migrate  import plaintext credentials from config.json into the vault
  version  print the CLI version

all commands accept --dir <data directory> (default ".")
setup and migrate also accept --hibp to check the passphrase against the
Have I Been Pwned breach dataset (k-anonymity; only a hash prefix is sent)`)
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

func newService(dir string) *service.Service {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return service.New(dir, session.NewCache(), logger)
}

func parseDir(name string, args []string) (string, error) {
	dir, _, err := parseVaultFlags(name, args, false)
	return dir, err
}

func parseVaultFlags(name string, args []string, withHIBP bool) (string, bool, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dir string
	var hibp bool
	fs.StringVar(&dir, "dir", ".", "data directory")
	if withHIBP {
		fs.BoolVar(&hibp, "hibp", false, "check the passphrase against the HIBP breach dataset")
	}

	if err := fs.Parse(args); err != nil {
		return "", false, userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return "", false, userError{msg: "unexpected positional arguments"}
	}
	return dir, hibp, nil
}

func passphraseOptions(hibp bool) auth.ValidateOptions {
	opts := auth.DefaultValidateOptions()
	if hibp {
		opts.HIBP = auth.NewHIBPClient()
	}
	return opts
}

func runStatus(args []string) error {
	dir, err := parseDir("status", args)
	if err != nil {
		return err
	}

	st, err := newService(dir).Status("")
	if err != nil {
		return err
	}

	fmt.Printf("state: %s\n", st.State)
	if st.MigrationAvailable {
		fmt.Println("legacy plaintext credentials found in config.json; run 'vaultctl migrate'")
	}
	return nil
}

func runSetup(args []string) error {
	dir, hibp, err := parseVaultFlags("setup", args, true)
	if err != nil {
		return err
	}
	svc := newService(dir)

	reader := bufio.NewReader(os.Stdin)
	username, err := promptLine(reader, "Portal username: ")
	if err != nil {
		return err
	}
	portalURL, err := promptLine(reader, "Portal dashboard URL: ")
	if err != nil {
		return err
	}

	password, err := promptPassword("Portal password: ")
	if err != nil {
		return fmt.Errorf("read portal password: %w", err)
	}
	defer zeroBytes(password)

	passphrase, err := promptPassword("Master passphrase: ")
	if err != nil {
		return fmt.Errorf("read master passphrase: %w", err)
	}
	defer zeroBytes(passphrase)

	confirm, err := promptPassword("Confirm master passphrase: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(passphrase, confirm) {
		return userError{msg: "passphrases do not match"}
	}

	if err := auth.ValidateMasterPassphrase(context.Background(), string(passphrase), passphraseOptions(hibp)); err != nil {
		return userError{msg: err.Error()}
	}

	rec := vault.CredentialRecord{
		Username:  username,
		Password:  string(password),
		PortalURL: portalURL,
	}
	if err := svc.Setup(rec, string(passphrase)); err != nil {
		if errors.Is(err, vault.ErrAlreadyInitialized) {
			return userError{msg: "vault already exists; run 'vaultctl reset' first"}
		}
		return err
	}

	fmt.Println("vault created")
	return nil
}

func runCheck(args []string) error {
	dir, err := parseDir("check", args)
	if err != nil {
		return err
	}
	svc := newService(dir)

	passphrase, err := promptPassword("Master passphrase: ")
	if err != nil {
		return fmt.Errorf("read master passphrase: %w", err)
	}
	defer zeroBytes(passphrase)

	rec, err := svc.Unlock("vaultctl", string(passphrase), 0)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidPassphrase), errors.Is(err, vault.ErrStoreCorrupted):
			return userError{msg: "unable to unlock vault with the given passphrase"}
		case errors.Is(err, vault.ErrNotFound):
			return userError{msg: "no vault found"}
		}
		return err
	}

	fmt.Printf("unlock ok\nusername: %s\npassword: %s\nportal:   %s\n",
		rec.Username, strings.Repeat("*", len(rec.Password)), rec.PortalURL)
	return nil
}

func runReset(args []string) error {
	dir, err := parseDir("reset", args)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	answer, err := promptLine(reader, "Delete the vault? This cannot be undone. Type 'yes' to continue: ")
	if err != nil {
		return err
	}
	if answer != "yes" {
		return userError{msg: "aborted"}
	}

	if err := newService(dir).Reset(); err != nil {
		return err
	}
	fmt.Println("vault deleted")
	return nil
}

func runMigrate(args []string) error {
	dir, hibp, err := parseVaultFlags("migrate", args, true)
	if err != nil {
		return err
	}
	svc := newService(dir)

	passphrase, err := promptPassword("Master passphrase for the new vault: ")
	if err != nil {
		return fmt.Errorf("read master passphrase: %w", err)
	}
	defer zeroBytes(passphrase)

	confirm, err := promptPassword("Confirm master passphrase: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(passphrase, confirm) {
		return userError{msg: "passphrases do not match"}
	}

	if err := auth.ValidateMasterPassphrase(context.Background(), string(passphrase), passphraseOptions(hibp)); err != nil {
		return userError{msg: err.Error()}
	}

	if err := svc.Migrate(string(passphrase)); err != nil {
		switch {
		case errors.Is(err, vault.ErrAlreadyInitialized):
			return userError{msg: "vault already exists; nothing to migrate"}
		case errors.Is(err, service.ErrNoLegacyCredentials):
			return userError{msg: "no plaintext credentials found in config.json"}
		}
		return err
	}

	fmt.Println("credentials migrated into the vault; config.json backed up and scrubbed")
	return nil
}

func promptLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
