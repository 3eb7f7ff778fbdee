package session

import (
	"errors"
	"sync"
	"time"

	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

// ErrNoSession covers both an unknown session ID and an expired entry.
var ErrNoSession = errors.New("no credentials cached for session")

// DefaultTTL bounds how long decrypted credentials stay cached after unlock.
const DefaultTTL = 12 * time.Hour

type entry struct {
	record    vault.CredentialRecord
	expiresAt time.Time
}

// Cache maps opaque session identifiers to decrypted credential records.
// It is the only place a CredentialRecord exists outside a function call.
// Nothing here is ever persisted: a process restart empties the cache and
// forces re-authentication with the master passphrase, which is intended.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewCache returns an empty session credential cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Put caches credentials for a session until ttl elapses. A non-positive ttl
// falls back to DefaultTTL.
func (c *Cache) Put(sessionID string, rec vault.CredentialRecord, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = entry{
		record:    rec,
		expiresAt: c.now().Add(ttl),
	}
}

// Get returns the cached credentials for a session. Expired entries are
// removed on access and reported as ErrNoSession.
func (c *Cache) Get(sessionID string) (vault.CredentialRecord, error) {
	c.mu.RLock()
	e, ok := c.entries[sessionID]
	c.mu.RUnlock()

	if !ok {
		return vault.CredentialRecord{}, ErrNoSession
	}
	if c.now().After(e.expiresAt) {
		c.Invalidate(sessionID)
		return vault.CredentialRecord{}, ErrNoSession
	}
	return e.record, nil
}

// Has reports whether a session currently holds live credentials.
func (c *Cache) Has(sessionID string) bool {
	_, err := c.Get(sessionID)
	return err == nil
}

// Invalidate drops the entry for one session (logout).
func (c *Cache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// InvalidateAll drops every entry. Used by reset, which must not leave any
// session holding credentials for a vault that no longer exists.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// PurgeExpired removes entries past their deadline and returns how many were
// dropped. Callers may run it periodically; Get already expires lazily.
func (c *Cache) PurgeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
			purged++
		}
	}
	return purged
}
