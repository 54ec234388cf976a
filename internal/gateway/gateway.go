// Package gateway implements the HTTP file-gateway adapter: a raw TCP
// listener, a fixed route table and the dispatch boundary that converts
// handler results into wire responses.
package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"sandgate/internal/gateway/handlers"
	"sandgate/internal/logger"
)

// Config holds the gateway's listener configuration.
type Config struct {
	// Enabled controls whether the gateway adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. Defaults to 8080.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// ReadTimeout bounds reading one complete request, body included.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one complete response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout bounds the graceful-shutdown drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MaxBodyBytes caps a declared request body. Defaults to 32 MiB.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 32 << 20
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid max_body_bytes %d: must be >= 0", c.MaxBodyBytes)
	}
	return nil
}

// Gateway is the adapter serving the file-gateway protocol over raw TCP.
//
// Each accepted connection carries exactly one request and is closed after
// the response. Shutdown closes the listener, signals the accept loop via
// the shutdown channel and waits for in-flight connections up to
// ShutdownTimeout.
type Gateway struct {
	config  Config
	handler *handlers.Handler
	routes  map[string]route

	listener net.Listener

	activeConns   sync.WaitGroup
	shutdownOnce  sync.Once
	shutdown      chan struct{}
	connCount     atomic.Int32
	connSemaphore chan struct{}
}

// New creates a Gateway from its configuration and the shared handler.
// Zero config values are replaced with defaults; an invalid configuration
// is a programming error and panics.
func New(config Config, handler *handlers.Handler) *Gateway {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid gateway config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	g := &Gateway{
		config:        config,
		handler:       handler,
		shutdown:      make(chan struct{}),
		connSemaphore: connSemaphore,
	}
	g.routes = g.buildRoutes()
	return g
}

// Serve listens on the configured port and accepts connections until the
// context is cancelled. A failed accept never stops the loop; only shutdown
// does.
func (g *Gateway) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", g.config.Port))
	if err != nil {
		return fmt.Errorf("create gateway listener on port %d: %w", g.config.Port, err)
	}
	g.listener = listener
	logger.Info("Gateway listening on port %d", g.config.Port)

	go func() {
		<-ctx.Done()
		g.initiateShutdown()
	}()

	for {
		if g.connSemaphore != nil {
			select {
			case g.connSemaphore <- struct{}{}:
			case <-g.shutdown:
				return g.drain(g.config.ShutdownTimeout)
			}
		}

		tcpConn, err := g.listener.Accept()
		if err != nil {
			if g.connSemaphore != nil {
				<-g.connSemaphore
			}
			select {
			case <-g.shutdown:
				// The listener was closed on purpose.
				return g.drain(g.config.ShutdownTimeout)
			default:
				logger.Warn("Gateway accept error: %v", err)
				continue
			}
		}

		g.activeConns.Add(1)
		g.connCount.Add(1)
		logger.Debug("Gateway connection from %s (active: %d)",
			tcpConn.RemoteAddr(), g.connCount.Load())

		go func(conn net.Conn) {
			defer func() {
				g.activeConns.Done()
				g.connCount.Add(-1)
				if g.connSemaphore != nil {
					<-g.connSemaphore
				}
			}()
			g.serveConn(conn)
		}(tcpConn)
	}
}

func (g *Gateway) initiateShutdown() {
	g.shutdownOnce.Do(func() {
		logger.Debug("Gateway shutdown initiated")
		close(g.shutdown)
		if g.listener != nil {
			if err := g.listener.Close(); err != nil {
				logger.Debug("Error closing gateway listener: %v", err)
			}
		}
	})
}

// drain waits for active connections to finish, up to the timeout.
func (g *Gateway) drain(timeout time.Duration) error {
	active := g.connCount.Load()
	if active > 0 {
		logger.Info("Gateway draining %d active connection(s) (timeout: %v)", active, timeout)
	}

	done := make(chan struct{})
	go func() {
		g.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Gateway shutdown complete")
		return nil
	case <-time.After(timeout):
		remaining := g.connCount.Load()
		return fmt.Errorf("gateway shutdown timeout: %d connection(s) still active", remaining)
	}
}

// Stop initiates graceful shutdown and waits for active connections up to
// the context's deadline. Safe to call multiple times and concurrently with
// Serve.
func (g *Gateway) Stop(ctx context.Context) error {
	g.initiateShutdown()

	done := make(chan struct{})
	go func() {
		g.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Protocol implements adapter.Adapter.
func (g *Gateway) Protocol() string {
	return "HTTP"
}

// Port implements adapter.Adapter.
func (g *Gateway) Port() int {
	return g.config.Port
}

// ActiveConnections reports the number of in-flight connections.
func (g *Gateway) ActiveConnections() int32 {
	return g.connCount.Load()
}
