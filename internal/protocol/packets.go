// Package protocol implements the framing, builders and parsers for the
// war card game protocol. Every message starts with a single command byte
// and has a fixed length; there are no length prefixes on the wire.
package protocol

// Command is the first byte of every message.
type Command byte

const (
	CmdWantGame   Command = 0 // Client asks to be paired into a game
	CmdGameStart  Command = 1 // Server deals the 26-card hand
	CmdPlayCard   Command = 2 // Client relinquishes the card for this round
	CmdPlayResult Command = 3 // Server reports the round verdict
)

var commandNames = map[Command]string{
	CmdWantGame:   "WANTGAME",
	CmdGameStart:  "GAMESTART",
	CmdPlayCard:   "PLAYCARD",
	CmdPlayResult: "PLAYRESULT",
}

// String returns the protocol name of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Result is the payload byte of a PLAYRESULT message.
type Result byte

const (
	ResultWin  Result = 0
	ResultDraw Result = 1
	ResultLose Result = 2
)

var resultNames = map[Result]string{
	ResultWin:  "win",
	ResultDraw: "draw",
	ResultLose: "lose",
}

// String returns the lowercase name of the result.
func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes Result as a JSON string (e.g. "win").
func (r Result) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// Mirror returns the verdict the opponent receives for the same round.
func (r Result) Mirror() Result {
	switch r {
	case ResultWin:
		return ResultLose
	case ResultLose:
		return ResultWin
	default:
		return r
	}
}

// Message sizes in bytes, command byte included.
const (
	WantGameSize   = 2
	PlayCardSize   = 2
	PlayResultSize = 2
	GameStartSize  = 1 + HandSize
)

// HandSize is the number of cards dealt to each player.
const HandSize = 26

// MaxCard is the highest valid card value.
const MaxCard = 51
