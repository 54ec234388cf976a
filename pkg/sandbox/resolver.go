package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sandgate/internal/logger"
	"sandgate/pkg/session"
)

// ErrUnauthorized reports a missing, unknown or expired session token.
var ErrUnauthorized = errors.New("no valid session")

// ErrForbidden reports a path that would escape the user's sandbox. Handlers
// deliberately collapse it into the same response as ErrUnauthorized so a
// caller cannot distinguish a bad token from a traversal attempt.
var ErrForbidden = errors.New("path escapes sandbox")

// Resolver turns (token, client path) pairs into canonical absolute paths
// that are guaranteed to lie inside the requesting user's sandbox.
//
// Two independent guards run on every call, in a fixed order:
//
//  1. a raw string check rejecting any ".." segment before normalization;
//  2. a canonical segment-prefix check of the cleaned candidate against the
//     user's base directory.
//
// Neither check alone is sufficient. Canonicalization can be fooled by
// platform-specific segment handling, and the raw check can be fooled by
// mixed-separator sequences, so both always run.
type Resolver struct {
	root     string
	mapping  *Mapping
	sessions *session.Store
}

// NewResolver creates a resolver rooted at the given sandbox root directory.
// The root is made absolute once at construction so every later comparison
// operates on canonical paths.
func NewResolver(root string, mapping *Mapping, sessions *session.Store) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalize sandbox root: %w", err)
	}
	return &Resolver{
		root:     filepath.Clean(abs),
		mapping:  mapping,
		sessions: sessions,
	}, nil
}

// Root returns the canonical sandbox root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates the session token, then resolves the client path inside
// that user's sandbox. Returns ErrUnauthorized for token failures and
// ErrForbidden for traversal or cross-tenant escapes.
func (r *Resolver) Resolve(token, clientPath string) (string, error) {
	username, ok := r.sessions.Validate(token)
	if !ok {
		return "", ErrUnauthorized
	}
	return r.ResolveUser(username, clientPath)
}

// ResolveUser resolves a client path for an already-authenticated username.
// Exposed separately so handlers holding a validated session do not need to
// round-trip through the token again.
func (r *Resolver) ResolveUser(username, clientPath string) (string, error) {
	if containsParentSegment(clientPath) {
		logger.Security("Sandbox violation: user=%s path=%q contains parent reference", username, clientPath)
		return "", ErrForbidden
	}

	base := r.UserBase(username)
	normalized := normalizeClientPath(clientPath)

	candidate := base
	if normalized != "" {
		candidate = filepath.Clean(filepath.Join(base, normalized))
	}

	if !withinBase(candidate, base) {
		logger.Security("Sandbox violation: user=%s path=%q resolved outside base", username, clientPath)
		return "", ErrForbidden
	}

	return candidate, nil
}

// UserBase returns the canonical absolute sandbox base for a username.
func (r *Resolver) UserBase(username string) string {
	return filepath.Clean(filepath.Join(r.root, r.mapping.Folder(username)))
}

// containsParentSegment reports whether any slash- or backslash-delimited
// segment of the raw client path is exactly "..". This runs before any
// normalization so an encoded traversal cannot be cleaned into legality.
func containsParentSegment(clientPath string) bool {
	unified := strings.ReplaceAll(clientPath, "\\", "/")
	for _, segment := range strings.Split(unified, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// normalizeClientPath maps the client's path syntax onto the host's: empty
// or "/" means the sandbox root, separators are unified, and leading and
// trailing separators are stripped.
func normalizeClientPath(clientPath string) string {
	unified := strings.ReplaceAll(clientPath, "\\", "/")
	trimmed := strings.Trim(unified, "/")
	if trimmed == "" || trimmed == "." {
		return ""
	}
	return filepath.FromSlash(trimmed)
}

// withinBase reports whether candidate equals base or lies below it as a
// path-segment prefix. A plain string prefix would accept "/srv/alice-evil"
// for base "/srv/alice"; requiring the separator after base closes that.
func withinBase(candidate, base string) bool {
	if candidate == base {
		return true
	}
	return strings.HasPrefix(candidate, base+string(os.PathSeparator))
}
