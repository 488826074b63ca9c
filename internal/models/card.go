// internal/models/card.go
package models

// Suit is one of the four card suits.
type Suit string

const (
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitSpades   Suit = "spades"
)

// Suits lists every suit in deck-building order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// Card ranks run 2..14; J=11, Q=12, K=13, A=14.
const (
	RankJack  = 11
	RankQueen = 12
	RankKing  = 13
	RankAce   = 14
)

// Card is a single playing card.
type Card struct {
	Number int  `json:"number"`
	Suit   Suit `json:"suit"`
}

// PlayerCard is a card in a player's hand with its per-game flags.
// Flipped means face-up toward the table; Played means the card left the
// active set (phase 1 pyramid match or phase 2 disposal).
type PlayerCard struct {
	Card
	Flipped bool `json:"flipped"`
	Played  bool `json:"played"`
}

// LaidCard is a card in the shared 2-D table layout.
type LaidCard struct {
	Card
	Flipped bool `json:"flipped"`
}
