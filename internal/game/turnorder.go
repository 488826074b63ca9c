// internal/game/turnorder.go
package game

import (
	"math/rand"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
)

// NextTurnIndex computes the next active player under the given turn mode.
// Random mode draws uniformly from the players that have not had their turn
// yet, excluding the current one; when nobody is left the round is over and
// the index wraps to 0.
func NextTurnIndex(g *models.Game, mode string, rng *rand.Rand) int {
	n := len(g.TurnOrder)
	if n == 0 {
		return 0
	}
	cur := 0
	for i, id := range g.TurnOrder {
		if id == g.ActivePlayer {
			cur = i
			break
		}
	}

	switch mode {
	case models.ModeReverse:
		return (cur - 1 + n) % n
	case models.ModeRandom:
		var candidates []int
		for i, id := range g.TurnOrder {
			if i == cur {
				continue
			}
			if p := g.FindPlayer(id); p >= 0 && !g.Players[p].TurnInfo.HadTurn {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return 0
		}
		return candidates[rng.Intn(len(candidates))]
	default:
		return (cur + 1) % n
	}
}

// RoundComplete reports whether every player has taken their turn.
func RoundComplete(g *models.Game) bool {
	for i := range g.Players {
		if !g.Players[i].TurnInfo.HadTurn {
			return false
		}
	}
	return len(g.Players) > 0
}
