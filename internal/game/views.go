// internal/game/views.go
package game

import (
	"strings"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
)

// ViewGameInfo is the compact round header every subscriber sees.
func ViewGameInfo(g *models.Game) map[string]any {
	return map[string]any{
		"playerRow": g.GameInfo.RoundNr,
		"drinkRow":  g.GameInfo.DrinksPerRound,
		"phase":     g.Status,
	}
}

// ViewNextPlayer carries the per-user button state.
func ViewNextPlayer(g *models.Game, userID string) map[string]any {
	return map[string]any{
		"nextPhaseEnabled":  g.GameInfo.NextPhaseEnabled && isMaster(g, userID),
		"nextPlayerEnabled": nextPlayerEnabled(g, userID),
		"isCurrentPlayer":   g.ActivePlayer == userID,
	}
}

// ViewTurnInfo is the per-user turn frame. Phase 3 only exposes the role
// flags; earlier phases add drink and button state.
func ViewTurnInfo(g *models.Game, userID string) map[string]any {
	if g.Status == models.StatusPhase3 || g.Status == models.StatusFinished {
		return map[string]any{
			"isGameMaster":    isMaster(g, userID),
			"isCurrentPlayer": g.ActivePlayer == userID,
		}
	}
	drinks := 0
	if p := g.FindPlayer(userID); p >= 0 {
		drinks = g.Players[p].TurnInfo.DrinksReceived
	}
	return map[string]any{
		"drinksReceived":    drinks,
		"isGameMaster":      isMaster(g, userID),
		"isCurrentPlayer":   g.ActivePlayer == userID,
		"nextPhaseEnabled":  g.GameInfo.NextPhaseEnabled && isMaster(g, userID),
		"nextPlayerEnabled": nextPlayerEnabled(g, userID),
	}
}

// ViewAvatars lists every player's table presence.
func ViewAvatars(g *models.Game) []map[string]any {
	out := make([]map[string]any, len(g.Players))
	for i, p := range g.Players {
		out[i] = map[string]any{
			"id":              p.ID,
			"name":            p.Name,
			"avatar":          p.Avatar,
			"title":           p.Title,
			"drinksPerPlayer": p.TurnInfo.DrinksPerPlayer,
			"active":          p.ID == g.ActivePlayer,
		}
	}
	return out
}

// ViewDrink is the Avatar-mode allocation state for the active player.
func ViewDrink(g *models.Game, userID string) map[string]any {
	total := allocatedDrinks(g)
	hasToDown := 0
	if g.GameInfo.HasToDown != nil {
		hasToDown = g.GameInfo.HasToDown[userID]
	}
	drinksReceived := 0
	if p := g.FindPlayer(userID); p >= 0 {
		drinksReceived = g.Players[p].TurnInfo.DrinksReceived
	}
	return map[string]any{
		"given":          total >= g.GameInfo.DrinksPerRound,
		"canUp":          total < g.GameInfo.DrinksPerRound,
		"canDown":        total > 0,
		"drinksReceived": drinksReceived,
		"hasToDown":      hasToDown,
	}
}

// MaskedCards hides the face of every unflipped layout card.
func MaskedCards(g *models.Game) [][]models.LaidCard {
	out := make([][]models.LaidCard, len(g.Cards))
	for r, row := range g.Cards {
		masked := make([]models.LaidCard, len(row))
		for i, c := range row {
			if c.Flipped {
				masked[i] = c
			} else {
				masked[i] = models.LaidCard{}
			}
		}
		out[r] = masked
	}
	return out
}

// ViewPlayerCards is the caller's own hand, nothing masked.
func ViewPlayerCards(g *models.Game, userID string) []models.PlayerCard {
	if p := g.FindPlayer(userID); p >= 0 {
		return g.Players[p].Cards
	}
	return nil
}

// BusfahrerName joins the driver names for display.
func BusfahrerName(g *models.Game) string {
	names := make([]string, 0, len(g.GameInfo.Busfahrer))
	for _, id := range g.GameInfo.Busfahrer {
		if p := g.FindPlayer(id); p >= 0 {
			names = append(names, g.Players[p].Name)
		}
	}
	return strings.Join(names, " & ")
}

// ViewPhase3 is the ride progress frame.
func ViewPhase3(g *models.Game) map[string]any {
	return map[string]any{
		"currentRow": g.GameInfo.CurrentRow,
		"tryOver":    g.GameInfo.TryOver,
		"gameOver":   g.GameInfo.GameOver,
	}
}

// ViewSettings exposes the settings the client renders mid-game.
func ViewSettings(g *models.Game) map[string]any {
	return map[string]any{"giving": g.Settings.Giving}
}

func isMaster(g *models.Game, userID string) bool {
	p := g.FindPlayer(userID)
	return p >= 0 && g.Players[p].Role == models.RoleMaster
}

// nextPlayerEnabled mirrors the NextPlayer preconditions for the client's
// button state.
func nextPlayerEnabled(g *models.Game, userID string) bool {
	if g.ActivePlayer != userID {
		return false
	}
	switch g.Status {
	case models.StatusPhase1:
		if !g.GameInfo.IsRowFlipped {
			return false
		}
		if g.Settings.Giving == models.GivingAvatar &&
			allocatedDrinks(g) < g.GameInfo.DrinksPerRound {
			return false
		}
		return true
	case models.StatusPhase2:
		return g.GameInfo.RoundNr == 1
	default:
		return false
	}
}
