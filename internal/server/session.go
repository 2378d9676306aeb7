package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/game"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/protocol"
)

// SessionOptions tune how strictly a session checks its players.
type SessionOptions struct {
	// EnforceDealtCards rejects a PLAYCARD whose card is not hand[round].
	EnforceDealtCards bool
}

// player is one side of a session.
type player struct {
	label string
	conn  *network.Connection
	hand  game.Hand
	card  game.Card
	score int
}

// Session owns exactly two paired connections and plays one full game of
// war over them. It shares no mutable state with any other session.
type Session struct {
	id       string
	opts     SessionOptions
	eventBus *events.EventBus
	logger   zerolog.Logger
	players  [2]*player

	mu        sync.RWMutex
	state     events.SessionState
	round     int
	startedAt time.Time
	endedAt   time.Time
	reason    string

	failOnce  sync.Once
	failure   error
	closeOnce sync.Once
}

// NewSession pairs a and b into a session. a is player A, b is player B.
func NewSession(a, b *network.Connection, eventBus *events.EventBus, opts SessionOptions) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		opts:     opts,
		eventBus: eventBus,
		state:    events.SessionAwaitingStart,
		players: [2]*player{
			{label: "A", conn: a},
			{label: "B", conn: b},
		},
		logger: log.With().
			Str("component", "session").
			Str("session_id", id).
			Str("remote_a", a.RemoteAddr().String()).
			Str("remote_b", b.RemoteAddr().String()).
			Logger(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current protocol state.
func (s *Session) State() events.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	var dur time.Duration
	if !s.startedAt.IsZero() {
		dur = end.Sub(s.startedAt)
	}

	return SessionInfo{
		ID:        s.id,
		RemoteA:   s.players[0].conn.RemoteAddr().String(),
		RemoteB:   s.players[1].conn.RemoteAddr().String(),
		State:     s.state,
		Round:     s.round,
		ScoreA:    s.players[0].score,
		ScoreB:    s.players[1].score,
		StartedAt: s.startedAt,
		Duration:  formatDuration(dur),
		Reason:    s.reason,
	}
}

// Run plays the whole game and closes both connections before returning.
// The returned error is the cause of an abort; it never escapes the
// session's own goroutine.
func (s *Session) Run(ctx context.Context) (err error) {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.fail(fmt.Errorf("session cancelled: %w", context.Cause(ctx)))
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("session panicked: %v", r))
			err = s.cause()
		}
		s.closeConnections()
		s.finish(err)
	}()

	s.emit(ctx, events.EventSessionStarted)
	s.logger.Info().Msg("session started")

	return s.play(ctx)
}

// play walks AWAITING_START -> DEALT -> PLAYING(0..25) -> DONE.
func (s *Session) play(ctx context.Context) error {
	err := s.both(func(p *player) error {
		data, err := p.conn.ReadMessage(protocol.WantGameSize)
		if err != nil {
			return err
		}
		return protocol.ParseWantGame(data)
	})
	if err != nil {
		return err
	}

	deck, err := game.NewShuffledDeck()
	if err != nil {
		return err
	}
	handA, handB, err := game.DealHands(deck)
	if err != nil {
		return err
	}
	s.players[0].hand, s.players[1].hand = handA, handB

	err = s.both(func(p *player) error {
		msg, err := protocol.BuildGameStart(p.hand.Bytes())
		if err != nil {
			return err
		}
		return p.conn.WriteMessage(msg)
	})
	if err != nil {
		return err
	}
	s.setState(events.SessionDealt)
	s.logger.Debug().Msg("hands dealt")

	s.setState(events.SessionPlaying)
	for round := 0; round < protocol.HandSize; round++ {
		if err := s.playRound(ctx, round); err != nil {
			return err
		}
	}

	return nil
}

// playRound reads both cards, adjudicates, and writes both verdicts.
// The next round cannot begin until both verdicts are written.
func (s *Session) playRound(ctx context.Context, round int) error {
	err := s.both(func(p *player) error {
		data, err := p.conn.ReadMessage(protocol.PlayCardSize)
		if err != nil {
			return err
		}
		card, err := protocol.ParsePlayCard(data)
		if err != nil {
			return err
		}
		if s.opts.EnforceDealtCards && game.Card(card) != p.hand[round] {
			return &protocol.MalformedMessageError{
				Expected: protocol.CmdPlayCard,
				Reason:   fmt.Sprintf("round %d: played card %d, dealt %d", round, card, p.hand[round]),
			}
		}
		p.card = game.Card(card)
		return nil
	})
	if err != nil {
		return err
	}

	a, b := s.players[0], s.players[1]
	resultA, resultB := game.Verdicts(a.card, b.card)

	err = s.both(func(p *player) error {
		result := resultA
		if p == b {
			result = resultB
		}
		return p.conn.WriteMessage(protocol.BuildPlayResult(result))
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	a.score += scoreOf(resultA)
	b.score += scoreOf(resultB)
	s.round = round + 1
	s.mu.Unlock()

	s.eventBus.Emit(ctx, events.Event{
		Type:   events.EventRoundPlayed,
		Source: "session",
		Payload: events.RoundPayload{
			SessionID: s.id,
			Round:     round,
			CardA:     uint8(a.card),
			CardB:     uint8(b.card),
			ResultA:   resultA.String(),
			ResultB:   resultB.String(),
		},
	})
	return nil
}

// Abort tears the session down from outside. The session goroutine
// observes the closed connections and finishes as aborted.
func (s *Session) Abort(reason string) {
	s.fail(errors.New(reason))
}

// both runs fn for the two players concurrently. The first failure closes
// both connections, which unblocks whatever the other side is waiting on.
func (s *Session) both(fn func(p *player) error) error {
	var g errgroup.Group
	for _, p := range s.players {
		p := p
		g.Go(func() error {
			if err := fn(p); err != nil {
				s.fail(fmt.Errorf("player %s: %w", p.label, err))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s.cause()
	}
	return nil
}

// fail records the first abort cause and tears the connections down.
func (s *Session) fail(err error) {
	s.failOnce.Do(func() { s.failure = err })
	s.closeConnections()
}

func (s *Session) cause() error {
	s.failOnce.Do(func() { s.failure = errors.New("session aborted") })
	return s.failure
}

func (s *Session) closeConnections() {
	s.closeOnce.Do(func() {
		for _, p := range s.players {
			p.conn.Close()
		}
	})
}

// finish moves the session to its terminal state and reports it.
func (s *Session) finish(err error) {
	s.mu.Lock()
	s.endedAt = time.Now()
	if err != nil {
		s.state = events.SessionAborted
		s.reason = err.Error()
	} else {
		s.state = events.SessionDone
	}
	s.mu.Unlock()

	info := s.Info()
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("round", info.Round).
			Msg("session aborted")
		s.emit(context.Background(), events.EventSessionAborted)
		return
	}

	s.logger.Info().
		Int("score_a", info.ScoreA).
		Int("score_b", info.ScoreB).
		Str("duration", info.Duration).
		Msg("session complete")
	s.emit(context.Background(), events.EventSessionCompleted)
}

func (s *Session) setState(state events.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) emit(ctx context.Context, t events.EventType) {
	info := s.Info()
	s.eventBus.Emit(ctx, events.Event{
		Type:   t,
		Source: "session",
		Payload: events.SessionPayload{
			SessionID: info.ID,
			RemoteA:   info.RemoteA,
			RemoteB:   info.RemoteB,
			State:     info.State,
			Rounds:    info.Round,
			ScoreA:    info.ScoreA,
			ScoreB:    info.ScoreB,
			Reason:    info.Reason,
			Duration:  s.elapsed(),
		},
	})
}

func (s *Session) elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt.IsZero() {
		return 0
	}
	if s.endedAt.IsZero() {
		return time.Since(s.startedAt)
	}
	return s.endedAt.Sub(s.startedAt)
}

func scoreOf(r protocol.Result) int {
	switch r {
	case protocol.ResultWin:
		return 1
	case protocol.ResultLose:
		return -1
	default:
		return 0
	}
}
