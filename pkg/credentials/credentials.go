// Package credentials implements the credential-verification collaborator
// consumed by the gateway: password checks, failed-attempt tracking with
// lockout, and the account registry that keeps the folder mapping in sync.
package credentials

// Store is the capability surface the gateway depends on. The gateway never
// sees password hashes; it only asks whether a login attempt succeeds and
// whether the account is currently locked out.
type Store interface {
	// Verify checks a username/password pair. A failed attempt increments
	// the account's failure counter; a successful one resets it.
	Verify(username, password string) bool

	// IsLockedOut reports whether the account has exceeded the failure
	// threshold and is still inside its cooldown window.
	IsLockedOut(username string) bool

	// CreateAccount registers a new user with the given password.
	CreateAccount(username, password string) error

	// DeleteAccount removes a user.
	DeleteAccount(username string) error
}

// Observer is notified when accounts are created or deleted, so the folder
// mapping can add or drop the matching sandbox entry.
type Observer interface {
	AccountCreated(username string)
	AccountDeleted(username string)
}
