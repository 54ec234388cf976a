// Package server orchestrates the protocol adapters and owns the pieces of
// state that must survive restarts, currently the folder mapping.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sandgate/internal/logger"
	"sandgate/pkg/adapter"
	"sandgate/pkg/sandbox"
)

const stopTimeout = 30 * time.Second

// Server runs one or more protocol adapters until its context is cancelled.
// The folder mapping is persisted as part of shutdown, before any adapter is
// told to stop, so a drain always captures the latest table.
type Server struct {
	mapping  *sandbox.Mapping
	adapters []adapter.Adapter

	mu        sync.RWMutex
	serveOnce sync.Once
	served    bool
}

// New creates a Server owning the given folder mapping.
func New(mapping *sandbox.Mapping) *Server {
	if mapping == nil {
		panic("folder mapping cannot be nil")
	}
	return &Server{mapping: mapping}
}

// AddAdapter registers a protocol adapter. Duplicate protocols and port
// conflicts are rejected. Must not be called after Serve.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter",
				a.Port(), existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// Serve starts every registered adapter and blocks until the context is
// cancelled or an adapter fails. Calling it twice panics.
func (s *Server) Serve(ctx context.Context) error {
	var err error
	ran := false

	s.serveOnce.Do(func() {
		s.mu.Lock()
		s.served = true
		s.mu.Unlock()
		ran = true
		err = s.serve(ctx)
	})

	if !ran {
		panic("Serve() has already been called on this server instance")
	}
	return err
}

type adapterError struct {
	protocol string
	err      error
}

func (s *Server) serve(ctx context.Context) error {
	s.mu.RLock()
	if len(s.adapters) == 0 {
		s.mu.RUnlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())
			if err := a.Serve(ctx); err != nil {
				if err != context.Canceled && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", a.Protocol(), err)
					errChan <- adapterError{protocol: a.Protocol(), err: err}
					return
				}
			}
			logger.Debug("%s adapter stopped", a.Protocol())
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received: %v", ctx.Err())
		shutdownErr = ctx.Err()
	case adapterErr := <-errChan:
		logger.Error("%s adapter failed, stopping all adapters", adapterErr.protocol)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	// Persist the folder mapping first: stopping adapters can take a
	// while, and the table must survive even an ugly shutdown.
	if err := s.mapping.Save(); err != nil {
		logger.Error("Failed to persist folder mapping: %v", err)
	}

	s.stopAllAdapters(adapters)
	wg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

// stopAllAdapters signals every adapter to shut down, in reverse
// registration order, sharing one timeout.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && err != context.Canceled {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		}
	}
}

// Adapters returns a copy of the registered adapter list.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]adapter.Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}
