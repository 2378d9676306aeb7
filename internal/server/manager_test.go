package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/protocol"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	return NewManager(config.DefaultConfig(), bus)
}

func pipePair(t *testing.T) (a, b *network.Connection, clientA, clientB net.Conn) {
	t.Helper()
	serverA, clientA := net.Pipe()
	serverB, clientB := net.Pipe()
	t.Cleanup(func() {
		clientA.Close()
		clientB.Close()
	})
	return network.NewConnection(serverA), network.NewConnection(serverB), clientA, clientB
}

func TestManagerRunsSessionsIndependently(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Session 1 plays to completion.
	a1, b1, ca1, cb1 := pipePair(t)
	m.StartSession(ctx, a1, b1)
	go runPlayer(ca1, protocol.HandSize, playDealt)
	go runPlayer(cb1, protocol.HandSize, playDealt)

	// Session 2 loses player A before the game starts.
	a2, b2, ca2, cb2 := pipePair(t)
	m.StartSession(ctx, a2, b2)
	ca2.Close()
	go runPlayer(cb2, protocol.HandSize, playDealt)

	require.True(t, m.Wait(5*time.Second))

	stats := m.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, uint64(2), stats.Started)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(1), stats.Aborted)
	assert.Equal(t, uint64(protocol.HandSize), stats.RoundsPlayed)
	assert.Empty(t, m.GetAllInfo())
}

func TestManagerTracksActiveSessions(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b, _, _ := pipePair(t)
	m.StartSession(ctx, a, b)

	require.Eventually(t, func() bool { return m.ActiveCount() == 1 }, time.Second, 5*time.Millisecond)

	all := m.GetAllInfo()
	require.Len(t, all, 1)
	info, ok := m.GetSession(all[0].ID)
	require.True(t, ok)
	assert.Equal(t, events.SessionAwaitingStart, info.State)

	_, ok = m.GetSession("missing")
	assert.False(t, ok)

	cancel()
	require.True(t, m.Wait(5*time.Second))
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, uint64(1), m.Stats().Aborted)
}

func TestManagerWaitTimesOut(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	a, b, _, _ := pipePair(t)
	m.StartSession(ctx, a, b)

	assert.False(t, m.Wait(20*time.Millisecond))

	cancel()
	assert.True(t, m.Wait(5*time.Second))
}

func TestManagerServesListenerPairs(t *testing.T) {
	cfg := config.DefaultConfig()
	srv := cfg.GetServer()
	srv.Port = 0
	cfg.SetServer(srv)

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	m := NewManager(cfg, bus)
	ln := network.NewTCPListener(cfg, bus, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Start(ctx)
	<-ln.Ready()

	results := make(chan playerResult, 4)
	for i := 0; i < 4; i++ {
		go func() {
			conn, err := net.Dial("tcp", ln.Addr().String())
			if err != nil {
				results <- playerResult{err: err}
				return
			}
			defer conn.Close()
			results <- runPlayer(conn, protocol.HandSize, playDealt)
		}()
	}

	for i := 0; i < 4; i++ {
		select {
		case res := <-results:
			require.NoError(t, res.err)
			assert.Len(t, res.results, protocol.HandSize)
			assert.True(t, res.closed)
		case <-time.After(10 * time.Second):
			t.Fatal("client did not finish")
		}
	}

	require.True(t, m.Wait(5*time.Second))
	assert.Equal(t, uint64(2), m.Stats().Completed)
}
