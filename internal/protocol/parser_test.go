package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildersProduceWireLayout(t *testing.T) {
	assert.Equal(t, []byte{0, 0}, BuildWantGame())
	assert.Equal(t, []byte{2, 51}, BuildPlayCard(51))
	assert.Equal(t, []byte{3, 2}, BuildPlayResult(ResultLose))

	hand := make([]byte, HandSize)
	for i := range hand {
		hand[i] = byte(51 - i)
	}
	msg, err := BuildGameStart(hand)
	require.NoError(t, err)
	require.Len(t, msg, GameStartSize)
	assert.Equal(t, byte(CmdGameStart), msg[0])
	assert.Equal(t, hand, msg[1:])
}

func TestBuildGameStartRejectsWrongHandSize(t *testing.T) {
	_, err := BuildGameStart(make([]byte, 25))
	assert.Error(t, err)
}

func TestParseWantGameIgnoresPayload(t *testing.T) {
	assert.NoError(t, ParseWantGame([]byte{0, 0}))
	assert.NoError(t, ParseWantGame([]byte{0, 0xFF}))
}

func TestParseRejectsUnexpectedCommand(t *testing.T) {
	err := ParseWantGame([]byte{2, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedMessage)

	var malformedErr *MalformedMessageError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, CmdWantGame, malformedErr.Expected)

	_, err = ParsePlayCard([]byte{3, 4})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = ParsePlayResult([]byte{2, 0})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestParsePlayCard(t *testing.T) {
	card, err := ParsePlayCard([]byte{2, 18})
	require.NoError(t, err)
	assert.Equal(t, byte(18), card)

	_, err = ParsePlayCard([]byte{2, 52})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = ParsePlayCard([]byte{2})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestParsePlayResult(t *testing.T) {
	for _, want := range []Result{ResultWin, ResultDraw, ResultLose} {
		got, err := ParsePlayResult(BuildPlayResult(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePlayResult([]byte{3, 7})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestParseGameStart(t *testing.T) {
	hand := make([]byte, HandSize)
	for i := range hand {
		hand[i] = byte(i * 2)
	}
	msg, err := BuildGameStart(hand)
	require.NoError(t, err)

	parsed, err := ParseGameStart(msg)
	require.NoError(t, err)
	assert.Equal(t, hand, parsed)

	msg[5] = 60
	_, err = ParseGameStart(msg)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestResultMirror(t *testing.T) {
	assert.Equal(t, ResultLose, ResultWin.Mirror())
	assert.Equal(t, ResultWin, ResultLose.Mirror())
	assert.Equal(t, ResultDraw, ResultDraw.Mirror())
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "PLAYCARD", CmdPlayCard.String())
	assert.Equal(t, "UNKNOWN", Command(9).String())
}
