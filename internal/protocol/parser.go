package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is the sentinel matched by every *MalformedMessageError.
var ErrMalformedMessage = errors.New("malformed message")

// MalformedMessageError reports a message with an unexpected command tag,
// wrong length or out-of-range payload.
type MalformedMessageError struct {
	Expected Command
	Reason   string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed %s message: %s", e.Expected, e.Reason)
}

// Is reports whether target is ErrMalformedMessage.
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(expected Command, format string, args ...interface{}) error {
	return &MalformedMessageError{Expected: expected, Reason: fmt.Sprintf(format, args...)}
}

func checkHeader(data []byte, expected Command, size int) error {
	if len(data) != size {
		return malformed(expected, "expected %d bytes, got %d", size, len(data))
	}
	if Command(data[0]) != expected {
		return malformed(expected, "unexpected command 0x%02X (%s)", data[0], Command(data[0]))
	}
	return nil
}

// ParseWantGame validates an opening request. The payload byte is unused
// and not inspected.
func ParseWantGame(data []byte) error {
	return checkHeader(data, CmdWantGame, WantGameSize)
}

// ParseGameStart validates a hand-start message and returns the 26 cards.
func ParseGameStart(data []byte) ([]byte, error) {
	if err := checkHeader(data, CmdGameStart, GameStartSize); err != nil {
		return nil, err
	}

	hand := make([]byte, HandSize)
	copy(hand, data[1:])
	for i, card := range hand {
		if card > MaxCard {
			return nil, malformed(CmdGameStart, "card %d at position %d out of range", card, i)
		}
	}
	return hand, nil
}

// ParsePlayCard validates a play message and returns the card.
func ParsePlayCard(data []byte) (byte, error) {
	if err := checkHeader(data, CmdPlayCard, PlayCardSize); err != nil {
		return 0, err
	}

	card := data[1]
	if card > MaxCard {
		return 0, malformed(CmdPlayCard, "card %d out of range", card)
	}
	return card, nil
}

// ParsePlayResult validates a verdict message and returns the result.
func ParsePlayResult(data []byte) (Result, error) {
	if err := checkHeader(data, CmdPlayResult, PlayResultSize); err != nil {
		return 0, err
	}

	result := Result(data[1])
	switch result {
	case ResultWin, ResultDraw, ResultLose:
		return result, nil
	default:
		return 0, malformed(CmdPlayResult, "unknown result %d", data[1])
	}
}
