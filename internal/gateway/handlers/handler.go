// Package handlers implements the gateway's operations: login and logout,
// the landing page, and the seven sandboxed file operations. Each handler
// parses its input, resolves the client path through the sandbox resolver,
// performs the filesystem work and returns a protocol-neutral Result.
package handlers

import (
	"encoding/json"
	"errors"

	"sandgate/internal/logger"
	"sandgate/internal/protocol/httpwire"
	"sandgate/pkg/credentials"
	"sandgate/pkg/sandbox"
	"sandgate/pkg/session"
)

// Handler bundles the collaborators every operation needs. Constructed once
// at startup and shared across all connections; all fields are safe for
// concurrent use.
type Handler struct {
	Sessions    *session.Store
	Resolver    *sandbox.Resolver
	Mapping     *sandbox.Mapping
	Credentials credentials.Store
}

// New wires a Handler from its collaborators.
func New(sessions *session.Store, resolver *sandbox.Resolver, mapping *sandbox.Mapping, creds credentials.Store) *Handler {
	return &Handler{
		Sessions:    sessions,
		Resolver:    resolver,
		Mapping:     mapping,
		Credentials: creds,
	}
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Sandgate</title></head>
<body>
<h1>Sandgate</h1>
<p>Authenticated file gateway. POST /api/login to obtain a token.</p>
</body>
</html>
`

// Page serves the static landing page.
func (h *Handler) Page(_ *httpwire.Request) Result {
	return Result{Status: StatusOK, HTML: landingPage}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username/password pair for a bearer token. Lockout and
// bad-credential failures produce the same status code; the distinction only
// reaches the security log.
func (h *Handler) Login(req *httpwire.Request) Result {
	var body loginRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return fail(StatusBadRequest, "Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return fail(StatusBadRequest, "Username and password are required")
	}

	if h.Credentials.IsLockedOut(body.Username) {
		logger.Security("Login rejected: account locked: user=%s", body.Username)
		return fail(StatusUnauthorized, "Invalid credentials")
	}
	if !h.Credentials.Verify(body.Username, body.Password) {
		logger.Security("Login failed: user=%s", body.Username)
		return fail(StatusUnauthorized, "Invalid credentials")
	}

	token, err := h.Sessions.Issue(body.Username)
	if err != nil {
		logger.Error("Login: token issue failed: %v", err)
		return fail(StatusInternal, "Could not create session")
	}

	logger.Info("Login: user=%s", body.Username)
	return okPayload("Login successful", map[string]any{
		"token":    token,
		"username": body.Username,
	})
}

// Logout revokes whatever token the request presents. Absent or already
// revoked tokens succeed too, so a client can always log out.
func (h *Handler) Logout(req *httpwire.Request) Result {
	if token := req.BearerToken(); token != "" {
		h.Sessions.Revoke(token)
	}
	return ok("Logged out")
}

// resolve turns the request's token and a client path into an absolute
// sandbox path. Token failures and sandbox violations collapse into the same
// unauthorized result so the response does not reveal which guard fired.
func (h *Handler) resolve(req *httpwire.Request, clientPath string) (string, Result, bool) {
	resolved, err := h.Resolver.Resolve(req.BearerToken(), clientPath)
	if err != nil {
		if errors.Is(err, sandbox.ErrForbidden) || errors.Is(err, sandbox.ErrUnauthorized) {
			return "", fail(StatusUnauthorized, "Unauthorized"), false
		}
		logger.Error("Path resolution failed: path=%q err=%v", clientPath, err)
		return "", fail(StatusInternal, "Could not resolve path"), false
	}
	return resolved, Result{}, true
}
