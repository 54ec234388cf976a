// Package adapter defines the lifecycle contract between the server and its
// protocol front ends.
package adapter

import "context"

// Adapter is a protocol-specific front end managed by the Server.
//
// Lifecycle: the adapter is constructed with its collaborators already
// injected, Serve blocks until shutdown, and Stop initiates graceful
// shutdown. Stop may be called concurrently with Serve and must be
// idempotent.
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs. On cancellation it must stop
	// accepting, drain active connections and return nil.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown, waiting for active connections up
	// to the context's deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}
