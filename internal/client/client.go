// Package client plays war games from the player side, one at a time or
// many at once under an admission limit.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/protocol"
)

const defaultDialTimeout = 10 * time.Second

// Outcome is the final sign of a player's score.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
	OutcomeDrew Outcome = "drew"
)

// OutcomeOf maps a score to an outcome.
func OutcomeOf(score int) Outcome {
	switch {
	case score > 0:
		return OutcomeWon
	case score < 0:
		return OutcomeLost
	default:
		return OutcomeDrew
	}
}

// Client plays one game per Play call against a war server.
type Client struct {
	addr        string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	logger      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithIOTimeout bounds every individual read and write. Zero disables it.
func WithIOTimeout(d time.Duration) Option {
	return func(c *Client) { c.ioTimeout = d }
}

// New creates a client for the server at addr ("host:port").
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:        addr,
		dialTimeout: defaultDialTimeout,
		logger:      log.With().Str("component", "client").Str("server", addr).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the record of one finished game.
type Result struct {
	Outcome Outcome
	Score   int
	Rounds  int
	Hand    []byte
}

// Play connects, plays a whole game and returns its outcome. A card is
// only sent once the verdict for the previous one has been read.
func (c *Client) Play(ctx context.Context) (Result, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Result{}, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	conn := network.NewConnection(raw)
	defer conn.Close()
	conn.SetTimeouts(c.ioTimeout, c.ioTimeout)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteMessage(protocol.BuildWantGame()); err != nil {
		return Result{}, err
	}

	msg, err := conn.ReadMessage(protocol.GameStartSize)
	if err != nil {
		return Result{}, err
	}
	hand, err := protocol.ParseGameStart(msg)
	if err != nil {
		return Result{}, err
	}

	res := Result{Hand: hand}
	for _, card := range hand {
		if err := conn.WriteMessage(protocol.BuildPlayCard(card)); err != nil {
			return res, err
		}
		data, err := conn.ReadMessage(protocol.PlayResultSize)
		if err != nil {
			return res, err
		}
		verdict, err := protocol.ParsePlayResult(data)
		if err != nil {
			return res, err
		}

		switch verdict {
		case protocol.ResultWin:
			res.Score++
		case protocol.ResultLose:
			res.Score--
		}
		res.Rounds++
	}

	res.Outcome = OutcomeOf(res.Score)
	return res, nil
}

// Run plays one game and reports 1 if it completed, 0 otherwise. Failures
// are logged and never returned.
func (c *Client) Run(ctx context.Context) int {
	res, err := c.Play(ctx)
	return c.logResult(res, err)
}

func (c *Client) logResult(res Result, err error) int {
	if err != nil {
		c.logger.Error().Err(err).Int("rounds", res.Rounds).Msg("game failed")
		return 0
	}
	c.logger.Debug().Int("score", res.Score).Msgf("Game complete, I %s", res.Outcome)
	return 1
}
