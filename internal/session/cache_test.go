package session

import (
	"errors"
	"testing"
	"time"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

var rec = vault.CredentialRecord{
	Username:  "alice@example.com",
	Password:  "pw1",
	PortalURL: "https://portal.example.com/overview/a/b",
}

func TestPutGet(t *testing.T) {
	c := NewCache()
	c.Put("s1", rec, time.Minute)

	got, err := c.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != rec {
		t.Fatalf("got %+v", got)
	}
}

func TestGetUnknownSession(t *testing.T) {
	c := NewCache()
	if _, err := c.Get("nope"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestEntriesAreIndependent(t *testing.T) {
	c := NewCache()
	other := rec
	other.Username = "bob@example.com"

	c.Put("s1", rec, time.Minute)
	c.Put("s2", other, time.Minute)
	c.Invalidate("s1")

	if _, err := c.Get("s1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected s1 gone, got %v", err)
	}
	if got, err := c.Get("s2"); err != nil || got.Username != "bob@example.com" {
		t.Fatalf("s2 should survive: got=%+v err=%v", got, err)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	c := NewCache()
	c.now = func() time.Time { return now }

	c.Put("s1", rec, time.Minute)

	now = now.Add(59 * time.Second)
	if _, err := c.Get("s1"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := c.Get("s1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected expired entry, got %v", err)
	}
}

func TestDefaultTTLApplied(t *testing.T) {
	now := time.Now()
	c := NewCache()
	c.now = func() time.Time { return now }

	c.Put("s1", rec, 0)

	now = now.Add(DefaultTTL - time.Second)
	if _, err := c.Get("s1"); err != nil {
		t.Fatalf("entry should still be live under the default TTL: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := c.Get("s1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected expiry after DefaultTTL, got %v", err)
	}
}

func TestInvalidateAll(t *testing.T) {
	c := NewCache()
	c.Put("s1", rec, time.Minute)
	c.Put("s2", rec, time.Minute)

	c.InvalidateAll()

	if c.Has("s1") || c.Has("s2") {
		t.Fatal("entries survived InvalidateAll")
	}
}

func TestPurgeExpired(t *testing.T) {
	now := time.Now()
	c := NewCache()
	c.now = func() time.Time { return now }

	c.Put("live", rec, time.Hour)
	c.Put("dead1", rec, time.Second)
	c.Put("dead2", rec, time.Second)

	now = now.Add(2 * time.Second)
	if purged := c.PurgeExpired(); purged != 2 {
		t.Fatalf("expected 2 purged entries, got %d", purged)
	}
	if !c.Has("live") {
		t.Fatal("live entry purged")
	}
}
