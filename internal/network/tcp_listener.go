package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/util"
)

const (
	// acceptBackoff is how long the accept loop pauses after a failed Accept.
	acceptBackoff = 50 * time.Millisecond

	keepAlivePeriod = 30 * time.Second
)

// SessionStarter runs a game over a freshly paired couple of connections.
// StartSession must not block: the listener resumes accepting as soon as
// it returns.
type SessionStarter interface {
	StartSession(ctx context.Context, a, b *Connection)
}

// TCPListener accepts player connections, pairs them in arrival order and
// hands every pair to the session runtime.
type TCPListener struct {
	cfg      *config.Config
	eventBus *events.EventBus
	starter  SessionStarter
	pairer   *Pairer
	registry *ConnectionRegistry
	logger   zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewTCPListener creates a new TCP listener.
func NewTCPListener(cfg *config.Config, eventBus *events.EventBus, starter SessionStarter) *TCPListener {
	return &TCPListener{
		cfg:      cfg,
		eventBus: eventBus,
		starter:  starter,
		pairer:   NewPairer(),
		registry: NewConnectionRegistry(),
		logger:   util.ComponentLogger("listener"),
		ready:    make(chan struct{}),
	}
}

// Start binds the configured address and accepts connections until ctx is
// cancelled.
func (l *TCPListener) Start(ctx context.Context) error {
	addr := l.cfg.Addr()

	lc := ListenConfig(keepAlivePeriod)
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", addr, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	close(l.ready)

	l.logger.Info().Str("addr", ln.Addr().String()).Msg("war server listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer l.shutdown()

	srv := l.cfg.GetServer()
	readTimeout := time.Duration(srv.ReadTimeout) * time.Second
	writeTimeout := time.Duration(srv.WriteTimeout) * time.Second

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.logger.Info().Msg("TCP listener stopping")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Error().Err(err).Msg("failed to accept connection")
			time.Sleep(acceptBackoff)
			continue
		}

		conn := NewConnection(rawConn)
		conn.SetTimeouts(readTimeout, writeTimeout)
		l.registry.Register(conn)

		l.dispatch(ctx, conn)
	}
}

// dispatch parks conn or pairs it with the parked connection and starts
// a session over the two.
func (l *TCPListener) dispatch(ctx context.Context, conn *Connection) {
	partner, paired := l.pairer.Offer(conn)
	if !paired {
		l.logger.Debug().
			Str("remote", conn.RemoteAddr().String()).
			Msg("connection waiting for an opponent")
		l.eventBus.Emit(ctx, events.Event{
			Type:    events.EventConnectionParked,
			Source:  "listener",
			Payload: events.ConnectionPayload{Remote: conn.RemoteAddr().String()},
		})
		return
	}

	l.logger.Debug().
		Str("remote_a", partner.RemoteAddr().String()).
		Str("remote_b", conn.RemoteAddr().String()).
		Msg("pair formed")

	// Arrival order decides the sides: the parked connection is player A.
	l.starter.StartSession(ctx, partner, conn)
}

// shutdown closes the unmatched connection, if one is waiting.
func (l *TCPListener) shutdown() {
	if waiting := l.pairer.Drain(); waiting != nil {
		l.logger.Info().
			Str("remote", waiting.RemoteAddr().String()).
			Msg("closing unmatched connection")
		waiting.Close()
	}
}

// Ready is closed once the listener is bound.
func (l *TCPListener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address, or nil before Start has bound.
func (l *TCPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Registry returns the registry of live player connections.
func (l *TCPListener) Registry() *ConnectionRegistry {
	return l.registry
}

// ReapIdle closes player connections silent for longer than maxIdle and
// returns how many were closed. The connection waiting for an opponent is
// never reaped.
func (l *TCPListener) ReapIdle(maxIdle time.Duration) int {
	parked := l.pairer.Parked()
	return l.registry.CleanStale(maxIdle, func(c *Connection) bool {
		return c == parked
	})
}

// Waiting returns how many connections sit in the pairing slot.
func (l *TCPListener) Waiting() int {
	return l.pairer.Waiting()
}

// Stop closes the listening socket.
func (l *TCPListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
