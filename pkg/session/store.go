// Package session implements the in-memory bearer-token store backing the
// gateway's authentication. Tokens are opaque random values issued at login
// and mapped to a username until they expire or are revoked. Sessions are
// deliberately not persisted: a restart invalidates every outstanding token.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the session lifetime applied when the configuration does not
// override it.
const DefaultTTL = 2 * time.Hour

type entry struct {
	username string
	expiry   time.Time
}

// Store is a thread-safe token-to-session map with lazy expiry.
//
// There is no background sweeper: an expired entry occupies its slot
// harmlessly until the next Validate call removes it. Validation never
// extends a session's lifetime.
type Store struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]entry

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

// NewStore creates an empty session store issuing tokens with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]entry),
		now:      time.Now,
	}
}

// Issue generates a cryptographically unpredictable token for the given
// username and registers a session expiring after the store's TTL.
func (s *Store) Issue(username string) (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = entry{
		username: username,
		expiry:   s.now().Add(s.ttl),
	}
	return token, nil
}

// Validate resolves a token to its username. It fails for unknown tokens and
// for expired ones; an expired entry is removed as a side effect so a second
// lookup fails without consulting the clock.
func (s *Store) Validate(token string) (string, bool) {
	s.mu.RLock()
	e, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	if s.now().After(e.expiry) {
		s.mu.Lock()
		// Re-check under the write lock: another goroutine may have
		// replaced the entry between the two critical sections.
		if cur, ok := s.sessions[token]; ok && s.now().After(cur.expiry) {
			delete(s.sessions, token)
		}
		s.mu.Unlock()
		return "", false
	}

	return e.username, true
}

// Revoke removes a session. Revoking an absent token is a no-op, which keeps
// logout idempotent.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Len reports the number of entries currently held, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
