package vault_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
	"github.com/Hussein-Mazeh/SolarDashboard/krypto"
)

var testRecord = vault.CredentialRecord{
	Username:  "alice@example.com",
	Password:  "pw1",
	PortalURL: "https://portal.example.com/overview/sys-1/serial-1",
}

func TestSealOpenRoundTrip(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if blob.Version != vault.BlobVersion {
		t.Fatalf("unexpected blob version %d", blob.Version)
	}
	if int(blob.Iterations) != krypto.DefaultIterations {
		t.Fatalf("expected %d iterations stored, got %d", krypto.DefaultIterations, blob.Iterations)
	}
	if len(blob.Salt) < 16 {
		t.Fatalf("salt too short: %d bytes", len(blob.Salt))
	}

	got, err := vault.Open(blob, []byte("masterpass1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != testRecord {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	rec, err := vault.Open(blob, []byte("wrongpass"))
	if !errors.Is(err, vault.ErrInvalidPassphrase) {
		t.Fatalf("expected ErrInvalidPassphrase, got %v", err)
	}
	if rec != (vault.CredentialRecord{}) {
		t.Fatal("failed open must not return a record")
	}
}

func TestSealSaltAndNonceUniqueness(t *testing.T) {
	b1, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b2, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if bytes.Equal(b1.Salt, b2.Salt) {
		t.Fatal("two setups must not share a salt")
	}
	if bytes.Equal(b1.Nonce, b2.Nonce) {
		t.Fatal("two setups must not share a nonce")
	}
	if bytes.Equal(b1.Ciphertext, b2.Ciphertext) {
		t.Fatal("identical inputs must still produce distinct ciphertext")
	}
}

func TestSealClampsIterationFloor(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), 10)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if int(blob.Iterations) != krypto.MinIterations {
		t.Fatalf("expected floor %d, got %d", krypto.MinIterations, blob.Iterations)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	wire, err := blob.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := vault.UnmarshalBlob(wire)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if parsed.Version != blob.Version ||
		parsed.Iterations != blob.Iterations ||
		!bytes.Equal(parsed.Salt, blob.Salt) ||
		!bytes.Equal(parsed.Nonce, blob.Nonce) ||
		!bytes.Equal(parsed.Ciphertext, blob.Ciphertext) {
		t.Fatal("wire round trip mismatch")
	}

	if rec, err := vault.Open(parsed, []byte("masterpass1")); err != nil || rec != testRecord {
		t.Fatalf("open after wire round trip: rec=%+v err=%v", rec, err)
	}
}

func TestUnmarshalRejectsUnknownVersion(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	wire, err := blob.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	wire[0] = 99
	if _, err := vault.UnmarshalBlob(wire); !errors.Is(err, vault.ErrStoreCorrupted) {
		t.Fatalf("expected ErrStoreCorrupted for unknown version, got %v", err)
	}
}

func TestUnmarshalRejectsTruncation(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	wire, err := blob.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Every strict prefix short of a full tag must be rejected as corrupted.
	for n := 0; n < len(wire)-1; n++ {
		if _, err := vault.UnmarshalBlob(wire[:n]); !errors.Is(err, vault.ErrStoreCorrupted) {
			t.Fatalf("prefix of %d bytes: expected ErrStoreCorrupted, got %v", n, err)
		}
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	blob, err := vault.Seal(testRecord, []byte("masterpass1"), krypto.DefaultIterations)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	for i := range blob.Ciphertext {
		tampered := blob
		tampered.Ciphertext = append([]byte(nil), blob.Ciphertext...)
		tampered.Ciphertext[i] ^= 0x01

		if _, err := vault.Open(tampered, []byte("masterpass1")); !errors.Is(err, vault.ErrInvalidPassphrase) {
			t.Fatalf("flipping ciphertext byte %d: expected ErrInvalidPassphrase, got %v", i, err)
		}
	}
}

func TestRecordValidate(t *testing.T) {
	if err := testRecord.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	cases := []vault.CredentialRecord{
		{Password: "pw", PortalURL: "https://x"},
		{Username: "u", PortalURL: "https://x"},
		{Username: "u", Password: "pw"},
	}
	for i, rec := range cases {
		if err := rec.Validate(); err == nil {
			t.Fatalf("case %d: incomplete record accepted", i)
		}
	}
}
