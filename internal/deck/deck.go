// internal/deck/deck.go
package deck

import (
	"math/rand"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
)

// Size is the number of cards in a double deck.
const Size = 104

// chance that the caotic shuffle chains a related card onto the tail.
const caoticStreakChance = 0.3

// New builds a double deck (two copies of all 52 cards) in canonical order.
func New() []models.Card {
	cards := make([]models.Card, 0, Size)
	for copyNr := 0; copyNr < 2; copyNr++ {
		for _, suit := range models.Suits {
			for number := 2; number <= models.RankAce; number++ {
				cards = append(cards, models.Card{Number: number, Suit: suit})
			}
		}
	}
	return cards
}

// Shuffle returns a fresh double deck shuffled with the named algorithm.
// Unknown names fall back to Fisher-Yates.
func Shuffle(style string, r *rand.Rand) []models.Card {
	cards := New()
	switch style {
	case models.ShuffleCaotic:
		return caotic(cards, r)
	case models.ShuffleRiffle:
		return riffle(cards, r)
	default:
		fisherYates(cards, r)
		return cards
	}
}

// fisherYates is the standard unbiased in-place swap.
func fisherYates(cards []models.Card, r *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// caotic draws uniformly from the remaining pile, except that with a fixed
// probability it instead draws a card sharing number or suit with the last
// card dealt. Produces visible streaks.
func caotic(cards []models.Card, r *rand.Rand) []models.Card {
	remaining := make([]models.Card, len(cards))
	copy(remaining, cards)
	out := make([]models.Card, 0, len(cards))

	for len(remaining) > 0 {
		idx := -1
		if len(out) > 0 && r.Float64() < caoticStreakChance {
			tail := out[len(out)-1]
			related := make([]int, 0, len(remaining))
			for i, c := range remaining {
				if c.Number == tail.Number || c.Suit == tail.Suit {
					related = append(related, i)
				}
			}
			if len(related) > 0 {
				idx = related[r.Intn(len(related))]
			}
		}
		if idx < 0 {
			idx = r.Intn(len(remaining))
		}
		out = append(out, remaining[idx])
		remaining[idx] = remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
	}
	return out
}

// riffle cuts near the middle with a jitter of +-5 and interleaves the
// halves, picking each side with probability 0.5. Seven rounds.
func riffle(cards []models.Card, r *rand.Rand) []models.Card {
	out := make([]models.Card, len(cards))
	copy(out, cards)

	for round := 0; round < 7; round++ {
		cut := len(out)/2 + r.Intn(11) - 5
		if cut < 1 {
			cut = 1
		}
		if cut > len(out)-1 {
			cut = len(out) - 1
		}
		left := out[:cut]
		right := out[cut:]

		merged := make([]models.Card, 0, len(out))
		li, ri := 0, 0
		for li < len(left) || ri < len(right) {
			takeLeft := r.Float64() < 0.5
			if li >= len(left) {
				takeLeft = false
			} else if ri >= len(right) {
				takeLeft = true
			}
			if takeLeft {
				merged = append(merged, left[li])
				li++
			} else {
				merged = append(merged, right[ri])
				ri++
			}
		}
		out = merged
	}
	return out
}

// Match compares two cards under the named matching style. Number-only is
// the default for unknown styles.
func Match(a, b models.Card, style string) bool {
	switch style {
	case models.MatchExact:
		return a.Number == b.Number && a.Suit == b.Suit
	case models.MatchType:
		return a.Suit == b.Suit
	default:
		return a.Number == b.Number
	}
}
