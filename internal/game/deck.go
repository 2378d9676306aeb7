// Package game holds the card model of war: dealing a shuffled deck into
// two hands and ranking cards against each other.
package game

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/energizer-project/war/internal/protocol"
)

// DeckSize is the number of distinct cards in a deck.
const DeckSize = 52

// Card is a card value in [0,51]. Its rank is the value modulo 13.
type Card uint8

// Rank returns the suit-independent rank, 0 (lowest) to 12 (highest).
func (c Card) Rank() int {
	return int(c) % 13
}

// Valid reports whether the card is inside the deck range.
func (c Card) Valid() bool {
	return c < DeckSize
}

// Hand is the ordered sequence of cards one player plays, hand[i] in round i.
type Hand []Card

// Bytes returns the hand in wire order.
func (h Hand) Bytes() []byte {
	out := make([]byte, len(h))
	for i, c := range h {
		out[i] = byte(c)
	}
	return out
}

// HandFromBytes converts a dealt wire payload back into a Hand.
func HandFromBytes(data []byte) Hand {
	h := make(Hand, len(data))
	for i, b := range data {
		h[i] = Card(b)
	}
	return h
}

// NewShuffledDeck returns a uniformly random permutation of 0..51.
func NewShuffledDeck() ([]Card, error) {
	deck := make([]Card, DeckSize)
	for i := range deck {
		deck[i] = Card(i)
	}
	if err := Shuffle(deck); err != nil {
		return nil, err
	}
	return deck, nil
}

// Shuffle permutes cards in place with a crypto-secure Fisher–Yates shuffle.
func Shuffle(cards []Card) error {
	for i := len(cards) - 1; i > 0; i-- {
		nBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("failed to draw random index: %w", err)
		}
		j := int(nBig.Int64())
		cards[i], cards[j] = cards[j], cards[i]
	}
	return nil
}

// DealHands splits a full deck in two, preserving deck order: the first 26
// cards go to hand A and the remaining 26 to hand B.
func DealHands(deck []Card) (Hand, Hand, error) {
	if len(deck) != 2*protocol.HandSize {
		return nil, nil, fmt.Errorf("deck must hold %d cards, got %d", 2*protocol.HandSize, len(deck))
	}

	a := make(Hand, protocol.HandSize)
	b := make(Hand, protocol.HandSize)
	copy(a, deck[:protocol.HandSize])
	copy(b, deck[protocol.HandSize:])
	return a, b, nil
}
