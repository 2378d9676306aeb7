package protocol

import (
	"bytes"
	"fmt"
)

// PacketBuilder constructs fixed-length war protocol messages.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteCommand writes the leading command byte.
func (b *PacketBuilder) WriteCommand(cmd Command) *PacketBuilder {
	b.buf.WriteByte(byte(cmd))
	return b
}

// WriteByte writes a single byte.
func (b *PacketBuilder) WriteByte(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed packet bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the packet being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current packet for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

// ---- Pre-built message constructors ----

// BuildWantGame creates the opening request.
// Format: [0x00][unused]
func BuildWantGame() []byte {
	return NewPacketBuilder().WriteCommand(CmdWantGame).WriteByte(0).Build()
}

// BuildGameStart creates the hand-start message.
// Format: [0x01][26 card bytes in hand order]
func BuildGameStart(hand []byte) ([]byte, error) {
	if len(hand) != HandSize {
		return nil, fmt.Errorf("hand must hold %d cards, got %d", HandSize, len(hand))
	}
	return NewPacketBuilder().WriteCommand(CmdGameStart).WriteBytes(hand).Build(), nil
}

// BuildPlayCard creates a play message for one round.
// Format: [0x02][card]
func BuildPlayCard(card byte) []byte {
	return NewPacketBuilder().WriteCommand(CmdPlayCard).WriteByte(card).Build()
}

// BuildPlayResult creates a round verdict message.
// Format: [0x03][result]
func BuildPlayResult(result Result) []byte {
	return NewPacketBuilder().WriteCommand(CmdPlayResult).WriteByte(byte(result)).Build()
}
