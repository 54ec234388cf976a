package credentials

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sandgate/internal/logger"
)

const (
	// DefaultMaxFailures is the number of consecutive failed attempts
	// before an account locks.
	DefaultMaxFailures = 5

	// DefaultLockout is how long a locked account stays locked.
	DefaultLockout = 15 * time.Minute
)

type failureState struct {
	count       int
	lockedUntil time.Time
}

// MemoryStore is an in-memory Store keeping bcrypt password hashes.
// Lockout state is process-local and resets on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	hashes      map[string][]byte
	failures    map[string]failureState
	maxFailures int
	lockout     time.Duration
	observer    Observer

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

// Options tunes a MemoryStore. Zero values select the defaults.
type Options struct {
	// Users seeds the store with username -> bcrypt hash pairs.
	Users map[string]string

	// MaxFailures overrides DefaultMaxFailures when > 0.
	MaxFailures int

	// Lockout overrides DefaultLockout when > 0.
	Lockout time.Duration
}

// NewMemoryStore creates a credential store from the given options.
func NewMemoryStore(opts Options) *MemoryStore {
	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	lockout := opts.Lockout
	if lockout <= 0 {
		lockout = DefaultLockout
	}

	hashes := make(map[string][]byte, len(opts.Users))
	for username, hash := range opts.Users {
		hashes[username] = []byte(hash)
	}

	return &MemoryStore{
		hashes:      hashes,
		failures:    make(map[string]failureState),
		maxFailures: maxFailures,
		lockout:     lockout,
		now:         time.Now,
	}
}

// SetObserver registers the account lifecycle observer. Called once during
// wiring, before the store is shared across requests.
func (s *MemoryStore) SetObserver(o Observer) {
	s.observer = o
}

// Verify checks the password against the stored bcrypt hash. Unknown users
// and locked accounts fail without touching bcrypt.
func (s *MemoryStore) Verify(username, password string) bool {
	if s.IsLockedOut(username) {
		logger.Security("Login rejected: account locked: user=%s", username)
		return false
	}

	s.mu.RLock()
	hash, ok := s.hashes[username]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		s.recordFailure(username)
		return false
	}

	s.mu.Lock()
	delete(s.failures, username)
	s.mu.Unlock()
	return true
}

// IsLockedOut reports whether the account is inside a lockout window. An
// expired window clears the failure state lazily.
func (s *MemoryStore) IsLockedOut(username string) bool {
	s.mu.RLock()
	state, ok := s.failures[username]
	s.mu.RUnlock()
	if !ok || state.lockedUntil.IsZero() {
		return false
	}

	if s.now().Before(state.lockedUntil) {
		return true
	}

	s.mu.Lock()
	if cur, ok := s.failures[username]; ok && !s.now().Before(cur.lockedUntil) {
		delete(s.failures, username)
	}
	s.mu.Unlock()
	return false
}

func (s *MemoryStore) recordFailure(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.failures[username]
	state.count++
	if state.count >= s.maxFailures {
		state.lockedUntil = s.now().Add(s.lockout)
		logger.Security("Account locked after %d failed attempts: user=%s until=%s",
			state.count, username, state.lockedUntil.Format(time.RFC3339))
	}
	s.failures[username] = state
}

// CreateAccount hashes the password and registers the user. The observer is
// notified so the folder mapping gains the matching entry.
func (s *MemoryStore) CreateAccount(username, password string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	s.mu.Lock()
	if _, exists := s.hashes[username]; exists {
		s.mu.Unlock()
		return fmt.Errorf("account %q already exists", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("hash password: %w", err)
	}
	s.hashes[username] = hash
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.AccountCreated(username)
	}
	logger.Info("Account created: user=%s", username)
	return nil
}

// DeleteAccount removes the user and its failure state.
func (s *MemoryStore) DeleteAccount(username string) error {
	s.mu.Lock()
	if _, exists := s.hashes[username]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("account %q does not exist", username)
	}
	delete(s.hashes, username)
	delete(s.failures, username)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.AccountDeleted(username)
	}
	logger.Info("Account deleted: user=%s", username)
	return nil
}
