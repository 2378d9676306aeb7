package client

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/protocol"
	"github.com/energizer-project/war/internal/server"
)

// startWarServer runs a real listener and session runtime on a free port.
func startWarServer(t *testing.T) (string, *server.Manager, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	srv := cfg.GetServer()
	srv.Port = 0
	cfg.SetServer(srv)

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	sessions := server.NewManager(cfg, bus)
	ln := network.NewTCPListener(cfg, bus, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ln.Start(ctx)
	<-ln.Ready()

	return ln.Addr().String(), sessions, bus
}

// startFakeServer accepts connections and hands each to handle.
func startFakeServer(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func dealtHand() []byte {
	hand := make([]byte, protocol.HandSize)
	for i := range hand {
		hand[i] = byte(i * 2)
	}
	return hand
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeWon, OutcomeOf(3))
	assert.Equal(t, OutcomeLost, OutcomeOf(-1))
	assert.Equal(t, OutcomeDrew, OutcomeOf(0))
}

func TestClientPlaysAgainstServer(t *testing.T) {
	addr, sessions, _ := startWarServer(t)

	type outcome struct {
		res Result
		err error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := New(addr).Play(context.Background())
			results <- outcome{res, err}
		}()
	}

	var scores []int
	for i := 0; i < 2; i++ {
		o := <-results
		require.NoError(t, o.err)
		assert.Equal(t, protocol.HandSize, o.res.Rounds)
		assert.Len(t, o.res.Hand, protocol.HandSize)
		assert.Equal(t, OutcomeOf(o.res.Score), o.res.Outcome)
		scores = append(scores, o.res.Score)
	}
	assert.Equal(t, 0, scores[0]+scores[1], "scores of the two sides mirror each other")

	require.True(t, sessions.Wait(5*time.Second))
	assert.Equal(t, uint64(1), sessions.Stats().Completed)
}

func TestClientScoresVerdicts(t *testing.T) {
	// Wins the first 10 rounds, loses the next 6, draws the rest.
	addr := startFakeServer(t, func(conn net.Conn) {
		if _, err := protocol.ReadExact(conn, protocol.WantGameSize); err != nil {
			return
		}
		msg, _ := protocol.BuildGameStart(dealtHand())
		conn.Write(msg)
		for round := 0; round < protocol.HandSize; round++ {
			if _, err := protocol.ReadExact(conn, protocol.PlayCardSize); err != nil {
				return
			}
			verdict := protocol.ResultDraw
			switch {
			case round < 10:
				verdict = protocol.ResultWin
			case round < 16:
				verdict = protocol.ResultLose
			}
			conn.Write(protocol.BuildPlayResult(verdict))
		}
	})

	res, err := New(addr).Play(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Score)
	assert.Equal(t, OutcomeWon, res.Outcome)
	assert.Equal(t, dealtHand(), res.Hand)
}

func TestClientWaitsForResultBeforeNextCard(t *testing.T) {
	var early atomic.Int32
	addr := startFakeServer(t, func(conn net.Conn) {
		if _, err := protocol.ReadExact(conn, protocol.WantGameSize); err != nil {
			return
		}
		hand := dealtHand()
		msg, _ := protocol.BuildGameStart(hand)
		conn.Write(msg)

		for round := 0; round < 3; round++ {
			data, err := protocol.ReadExact(conn, protocol.PlayCardSize)
			if err != nil {
				return
			}
			if data[1] != hand[round] {
				early.Add(1)
			}
			// Nothing else may arrive until the verdict is sent.
			conn.SetReadDeadline(time.Now().Add(30 * time.Millisecond))
			if n, _ := conn.Read(make([]byte, 1)); n > 0 {
				early.Add(1)
			}
			conn.SetReadDeadline(time.Time{})
			conn.Write(protocol.BuildPlayResult(protocol.ResultDraw))
		}
	})

	_, err := New(addr).Play(context.Background())
	require.Error(t, err, "server hangs up after three rounds")
	assert.Zero(t, early.Load())
}

func TestClientFailsOnShortGameStart(t *testing.T) {
	addr := startFakeServer(t, func(conn net.Conn) {
		protocol.ReadExact(conn, protocol.WantGameSize)
		conn.Write([]byte{byte(protocol.CmdGameStart), 1, 2, 3})
	})

	c := New(addr)
	_, err := c.Play(context.Background())
	var incomplete *protocol.IncompleteReadError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 4, incomplete.Received)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Equal(t, 0, c.Run(context.Background()))
}

func TestClientFailsOnMalformedGameStart(t *testing.T) {
	addr := startFakeServer(t, func(conn net.Conn) {
		protocol.ReadExact(conn, protocol.WantGameSize)
		msg := make([]byte, protocol.GameStartSize)
		msg[0] = byte(protocol.CmdPlayResult)
		conn.Write(msg)
	})

	_, err := New(addr).Play(context.Background())
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestClientRunReportsDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := New(addr, WithDialTimeout(time.Second))
	assert.Equal(t, 0, c.Run(context.Background()))
}

func TestClientCancelledWhileWaiting(t *testing.T) {
	// Accepts and never answers.
	var wg sync.WaitGroup
	wg.Add(1)
	addr := startFakeServer(t, func(conn net.Conn) {
		defer wg.Done()
		io.Copy(io.Discard, conn)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(addr).Play(ctx)
	assert.Error(t, err)
	wg.Wait()
}
