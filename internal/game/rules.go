package game

import "github.com/energizer-project/war/internal/protocol"

// Ordering is the outcome of comparing two cards.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// Compare orders two cards by rank. Suits are never consulted.
func Compare(c1, c2 Card) Ordering {
	r1, r2 := c1.Rank(), c2.Rank()
	switch {
	case r1 > r2:
		return Greater
	case r1 < r2:
		return Less
	default:
		return Equal
	}
}

// Verdicts returns the round result for the holder of c1 and of c2.
// The pair is always complementary: WIN with LOSE, DRAW with DRAW.
func Verdicts(c1, c2 Card) (protocol.Result, protocol.Result) {
	var first protocol.Result
	switch Compare(c1, c2) {
	case Greater:
		first = protocol.ResultWin
	case Less:
		first = protocol.ResultLose
	default:
		first = protocol.ResultDraw
	}
	return first, first.Mirror()
}
