// Package network implements the game listener, the pairing rendezvous and
// the connection wrapper that frames war protocol messages on a TCP stream.
package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/protocol"
)

// ErrConnectionClosed is returned for I/O on a connection that was closed
// locally.
var ErrConnectionClosed = errors.New("connection is closed")

var connectionIDs atomic.Uint64

// Connection wraps one player's TCP stream. Reads and writes are each
// serialized; Close may be called from any goroutine and unblocks both.
type Connection struct {
	id     uint64
	conn   net.Conn
	logger zerolog.Logger

	readMu  sync.Mutex
	writeMu sync.Mutex

	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	lastActivity time.Time
	closed       bool
	onClose      []func()

	connectedAt time.Time
	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn) *Connection {
	now := time.Now()
	id := connectionIDs.Add(1)
	return &Connection{
		id:           id,
		conn:         conn,
		connectedAt:  now,
		lastActivity: now,
		logger: log.With().
			Str("component", "connection").
			Uint64("conn_id", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// ID returns the process-unique connection identifier.
func (c *Connection) ID() uint64 {
	return c.id
}

// SetTimeouts sets per-message read and write deadlines. Zero disables them.
func (c *Connection) SetTimeouts(read, write time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = read
	c.writeTimeout = write
}

// OnClose registers fn to run once, after the connection is first closed.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// ReadMessage reads exactly n bytes. A stream that ends early yields a
// *protocol.IncompleteReadError.
func (c *Connection) ReadMessage(n int) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.mu.Lock()
	closed, timeout := c.closed, c.readTimeout
	c.mu.Unlock()
	if closed {
		return nil, ErrConnectionClosed
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	}

	data, err := protocol.ReadExact(c.conn, n)
	if err != nil {
		return nil, err
	}

	c.bytesIn.Add(uint64(n))
	c.touch()
	return data, nil
}

// WriteMessage sends one complete message.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed, timeout := c.closed, c.writeTimeout
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}

	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	n, err := c.conn.Write(data)
	c.bytesOut.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("failed to write %d byte message: %w", len(data), err)
	}

	c.touch()
	return nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Close closes the connection. Only the first call has any effect.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hooks := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	err := c.conn.Close()
	c.logger.Debug().
		Uint64("bytes_in", c.bytesIn.Load()).
		Uint64("bytes_out", c.bytesOut.Load()).
		Msg("connection closed")

	for _, fn := range hooks {
		fn()
	}
	return err
}

// IsClosed returns whether the connection has been closed locally.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// BytesIn returns the number of bytes read so far.
func (c *Connection) BytesIn() uint64 {
	return c.bytesIn.Load()
}

// BytesOut returns the number of bytes written so far.
func (c *Connection) BytesOut() uint64 {
	return c.bytesOut.Load()
}

// ConnectionRegistry tracks every live player connection so shutdown can
// close them all.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[uint64]*Connection),
	}
}

// Register adds a connection and removes it again once it closes.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()

	conn.OnClose(func() { r.Unregister(conn.ID()) })
	log.Trace().Uint64("conn_id", conn.ID()).Msg("connection registered")
}

// Unregister removes a connection from the registry without closing it.
func (r *ConnectionRegistry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		delete(r.conns, id)
		log.Trace().Uint64("conn_id", id).Msg("connection unregistered")
	}
}

// Get returns the connection with the given ID.
func (r *ConnectionRegistry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// GetAll returns a snapshot of all live connections.
func (r *ConnectionRegistry) GetAll() map[uint64]*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uint64]*Connection, len(r.conns))
	for k, v := range r.conns {
		result[k] = v
	}
	return result
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CleanStale closes connections idle for longer than maxIdle, except those
// exempt reports true for, and returns how many were closed. exempt may be
// nil.
func (r *ConnectionRegistry) CleanStale(maxIdle time.Duration, exempt func(*Connection) bool) int {
	now := time.Now()
	cleaned := 0
	for id, conn := range r.GetAll() {
		if exempt != nil && exempt(conn) {
			continue
		}
		if now.Sub(conn.LastActivity()) > maxIdle {
			log.Debug().
				Uint64("conn_id", id).
				Str("remote", conn.RemoteAddr().String()).
				Msg("closing idle connection")
			conn.Close()
			cleaned++
		}
	}
	return cleaned
}

// CloseAll closes every registered connection.
func (r *ConnectionRegistry) CloseAll() {
	// Close hooks call Unregister, so close outside the lock.
	conns := r.GetAll()
	for _, conn := range conns {
		conn.Close()
	}

	log.Info().Int("closed", len(conns)).Msg("all connections closed")
}
