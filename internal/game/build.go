// internal/game/build.go
package game

import (
	"math/rand"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/deck"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
)

// HandSize is the number of cards dealt to every player at start.
const HandSize = 10

// PyramidRows describes phase 1: row r holds r face-down cards.
var PyramidRows = []int{1, 2, 3, 4, 5}

// RideRows describes the phase 3 layout, bottom-up.
var RideRows = []int{2, 2, 3, 4, 5, 4, 3, 2, 2}

// Build snapshots the lobby into a fresh PHASE1 game: shuffled double deck,
// ten face-up cards per player, the five pyramid rows face down and the
// undealt remainder kept on the document so the full 104-card multiset stays
// accounted for.
func Build(l *models.Lobby, rng *rand.Rand) *models.Game {
	cards := deck.Shuffle(l.Settings.Shuffling, rng)

	players := make([]models.GamePlayer, 0, len(l.Players))
	turnOrder := make([]string, 0, len(l.Players))
	for _, p := range l.Players {
		hand := make([]models.PlayerCard, 0, HandSize)
		for i := 0; i < HandSize && len(cards) > 0; i++ {
			hand = append(hand, models.PlayerCard{Card: cards[0], Flipped: true})
			cards = cards[1:]
		}
		players = append(players, models.GamePlayer{
			ID:     p.ID,
			Name:   p.Name,
			Role:   p.Role,
			Gender: p.Gender,
			Avatar: p.Avatar,
			Title:  p.Title,
			Cards:  hand,
		})
		turnOrder = append(turnOrder, p.ID)
	}

	pyramid := make([][]models.LaidCard, len(PyramidRows))
	for r, n := range PyramidRows {
		row := make([]models.LaidCard, 0, n)
		for i := 0; i < n && len(cards) > 0; i++ {
			row = append(row, models.LaidCard{Card: cards[0]})
			cards = cards[1:]
		}
		pyramid[r] = row
	}

	active := ""
	if len(turnOrder) > 0 {
		active = turnOrder[0]
	}

	return &models.Game{
		Status:       models.StatusPhase1,
		Players:      players,
		Spectators:   append([]models.LobbyPlayer(nil), l.Spectators...),
		Cards:        pyramid,
		Deck:         cards,
		ActivePlayer: active,
		TurnOrder:    turnOrder,
		GameInfo: models.GameInfo{
			RoundNr:   1,
			HasToDown: map[string]int{},
		},
		Settings: l.Settings,
	}
}

// BuildRide lays out the nine phase 3 rows from a fresh shuffled deck. The
// seed cards at [0][1] and [8][0] are pre-flipped; everything else is face
// down. Returns the layout, the remainder and the starting lastCard.
func BuildRide(shuffling string, rng *rand.Rand) ([][]models.LaidCard, []models.Card, models.Card) {
	cards := deck.Shuffle(shuffling, rng)

	ride := make([][]models.LaidCard, len(RideRows))
	for r, n := range RideRows {
		row := make([]models.LaidCard, 0, n)
		for i := 0; i < n; i++ {
			row = append(row, models.LaidCard{Card: cards[0]})
			cards = cards[1:]
		}
		ride[r] = row
	}
	ride[0][1].Flipped = true
	ride[len(ride)-1][0].Flipped = true

	return ride, cards, ride[0][1].Card
}

// ElectBusfahrer picks the phase 3 drivers from the unplayed-card counts.
// Default mode takes everyone at the maximum, Reverse everyone at the
// minimum, Random a single uniform pick.
func ElectBusfahrer(players []models.GamePlayer, mode string, rng *rand.Rand) []string {
	if len(players) == 0 {
		return nil
	}
	if mode == models.ModeRandom {
		return []string{players[rng.Intn(len(players))].ID}
	}

	best := players[0].UnplayedCount()
	for i := range players[1:] {
		c := players[i+1].UnplayedCount()
		if mode == models.ModeReverse {
			if c < best {
				best = c
			}
		} else if c > best {
			best = c
		}
	}
	var out []string
	for i := range players {
		if players[i].UnplayedCount() == best {
			out = append(out, players[i].ID)
		}
	}
	return out
}
