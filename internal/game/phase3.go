// internal/game/phase3.go
package game

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

// Guess actions. Rows 0..7 use higher/lower/same against lastCard, the final
// row uses equal/unequal against its seed card.
const (
	ActionHigher  = "higher"
	ActionLower   = "lower"
	ActionSame    = "same"
	ActionEqual   = "equal"
	ActionUnequal = "unequal"
)

// retryPause lets clients render the face-down layout before the fresh one
// arrives.
const retryPause = 350 * time.Millisecond

// StartPhase3 elects the busfahrer and lays out the ride, master only.
func (e *Engine) StartPhase3(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusPhase2 {
		return httperr.Precondition("Phase Error", "not in phase 2")
	}
	if err := e.requireMaster(g, userID, "Phase Error"); err != nil {
		return err
	}
	if !g.GameInfo.NextPhaseEnabled {
		return httperr.Precondition("Phase Error", "phase 2 is not finished")
	}

	e.mu.Lock()
	drivers := ElectBusfahrer(g.Players, g.Settings.BusMode, e.rng)
	ride, rest, seed := BuildRide(g.Settings.Shuffling, e.rng)
	e.mu.Unlock()

	set := map[string]any{
		"status":                    models.StatusPhase3,
		"cards":                     ride,
		"deck":                      rest,
		"activePlayer":              drivers[0],
		"gameInfo.busfahrer":        drivers,
		"gameInfo.currentRow":       0,
		"gameInfo.lastCard":         seed,
		"gameInfo.drinksPerTry":     0,
		"gameInfo.tryOver":          false,
		"gameInfo.gameOver":         false,
		"gameInfo.nextPhaseEnabled": false,
	}
	if err := e.store.Update(ctx, store.ColGames, gameID, &store.Patch{Set: set}); err != nil {
		return httperr.Internal("Phase Error", err)
	}

	for _, d := range drivers {
		e.addStats(ctx, d, map[string]int{models.StatGamesBus: 1}, nil)
	}
	e.publishAction(ctx, gameID, userID, "startPhase3", map[string]any{"busfahrer": drivers})
	return nil
}

// CardAction is one guess of the ride. cardIdx is "row-col"; a second action
// tightens the guess conjunctively.
func (e *Engine) CardAction(ctx context.Context, gameID, userID, cardIdx, action, secondAction string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusPhase3 {
		return httperr.Precondition("Card Action Error", "not in phase 3")
	}
	if !g.IsBusfahrer(userID) {
		return httperr.Forbidden("Card Action Error", "only the busfahrer may guess")
	}
	if g.GameInfo.TryOver || g.GameInfo.GameOver {
		return httperr.Precondition("Card Action Error", "the try is over")
	}

	row, col, err := parseCardIdx(cardIdx)
	if err != nil {
		return err
	}
	if row != g.GameInfo.CurrentRow {
		return httperr.Precondition("Card Action Error", "card is not in the current row")
	}
	if row >= len(g.Cards) || col >= len(g.Cards[row]) {
		return httperr.Precondition("Card Action Error", "card index out of range")
	}
	card := g.Cards[row][col]
	if card.Flipped {
		return httperr.Precondition("Card Action Error", "card already flipped")
	}

	finalRow := row == len(g.Cards)-1
	reference := models.Card{}
	if finalRow {
		reference = g.Cards[row][0].Card
	} else if g.GameInfo.LastCard != nil {
		reference = *g.GameInfo.LastCard
	}

	correct, err := evalGuess(card.Card, reference, action, finalRow)
	if err != nil {
		return err
	}
	if correct && secondAction != "" {
		second, err := evalGuess(card.Card, reference, secondAction, finalRow)
		if err != nil {
			return err
		}
		correct = correct && second
	}

	flipPath := "cards." + strconv.Itoa(row) + "." + strconv.Itoa(col) + ".flipped"

	if !correct {
		drinks := g.GameInfo.CurrentRow + 1
		err := e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
			Set: map[string]any{
				flipPath:                true,
				"gameInfo.drinksPerTry": drinks,
				"gameInfo.tryOver":      true,
			},
		})
		if err != nil {
			return httperr.Internal("Card Action Error", err)
		}
		e.addStats(ctx, userID,
			map[string]int{models.StatDrinksSelf: drinks, models.StatNumberEx: 1},
			map[string]int{models.StatMaxDrinksSelf: drinks})
		e.publishAction(ctx, gameID, userID, "cardAction", map[string]any{
			"card": card.Card, "action": action, "correct": false,
		})
		return nil
	}

	set := map[string]any{
		flipPath:              true,
		"gameInfo.lastCard":   card.Card,
		"gameInfo.currentRow": g.GameInfo.CurrentRow + 1,
	}
	won := g.GameInfo.CurrentRow+1 == len(g.Cards)
	if won {
		set["gameInfo.gameOver"] = true
		set["status"] = models.StatusFinished
	}
	if err := e.store.Update(ctx, store.ColGames, gameID, &store.Patch{Set: set}); err != nil {
		return httperr.Internal("Card Action Error", err)
	}

	if won {
		e.addStats(ctx, userID, map[string]int{models.StatGamesWon: 1}, nil)
		for _, p := range g.Players {
			e.addStats(ctx, p.ID, map[string]int{models.StatGamesPlayed: 1}, nil)
		}
		e.log.WithFields(map[string]any{"gameId": gameID, "driver": userID}).
			Info("busfahrer cleared the ride")
	}
	e.publishAction(ctx, gameID, userID, "cardAction", map[string]any{
		"card": card.Card, "action": action, "correct": true,
	})
	return nil
}

// RetryPhase3 restarts a failed ride, master only. The face-down flip and
// the cleared activePlayer go out as their own update so subscribers see the
// transition before the fresh layout lands.
func (e *Engine) RetryPhase3(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusPhase3 {
		return httperr.Precondition("Retry Error", "not in phase 3")
	}
	if err := e.requireMaster(g, userID, "Retry Error"); err != nil {
		return err
	}
	if !g.GameInfo.TryOver || g.GameInfo.GameOver {
		return httperr.Precondition("Retry Error", "there is nothing to retry")
	}

	down := make([][]models.LaidCard, len(g.Cards))
	for r, row := range g.Cards {
		cleared := make([]models.LaidCard, len(row))
		for i, c := range row {
			cleared[i] = models.LaidCard{Card: c.Card}
		}
		down[r] = cleared
	}
	err = e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
		Set: map[string]any{"cards": down, "activePlayer": nil},
	})
	if err != nil {
		return httperr.Internal("Retry Error", err)
	}

	time.Sleep(retryPause)

	e.mu.Lock()
	ride, rest, seed := BuildRide(g.Settings.Shuffling, e.rng)
	e.mu.Unlock()

	// The active player stays cleared; guessing is gated on busfahrer
	// membership, not on the turn pointer.
	err = e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
		Set: map[string]any{
			"cards":                 ride,
			"deck":                  rest,
			"gameInfo.currentRow":   0,
			"gameInfo.lastCard":     seed,
			"gameInfo.drinksPerTry": 0,
			"gameInfo.tryOver":      false,
			"gameInfo.gameOver":     false,
		},
	})
	if err != nil {
		return httperr.Internal("Retry Error", err)
	}
	e.publishAction(ctx, gameID, userID, "retryPhase3", nil)
	return nil
}

// OpenNewGame tears down a finished game and reopens the lobby, master only.
// Every game subscriber is told to navigate back.
func (e *Engine) OpenNewGame(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if err := e.requireMaster(g, userID, "New Game Error"); err != nil {
		return err
	}
	if !g.GameInfo.GameOver {
		return httperr.Precondition("New Game Error", "the game is not over")
	}

	if err := e.store.Delete(ctx, store.ColGames, gameID); err != nil {
		return httperr.Internal("New Game Error", err)
	}
	err = e.store.Update(ctx, store.ColLobbies, gameID, &store.Patch{
		Set: map[string]any{"status": models.LobbyWaiting},
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warnf("game: reopening lobby %s: %v", gameID, err)
	}

	e.reg.BroadcastGame(gameID, registry.Message{
		Type: "newGameUpdate",
		Data: map[string]any{"lobbyId": gameID},
	})
	e.publishAction(ctx, gameID, userID, "openNewGame", nil)
	return nil
}

// Leave removes a participant from a running game. The last player (and a
// leaving master without inheritance) tears the whole table down; no further
// mutation may follow a branch that deleted the document.
func (e *Engine) Leave(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		var he *httperr.Error
		if errors.As(err, &he) && he.Status == 404 {
			return nil
		}
		return err
	}

	p := g.FindPlayer(userID)
	if p < 0 {
		for _, sp := range g.Spectators {
			if sp.ID == userID {
				return e.pullGame(ctx, gameID, &store.Patch{
					Pull: map[string]any{"spectators": map[string]any{"id": userID}},
				})
			}
		}
		return nil
	}

	if len(g.Players) <= 1 {
		return e.teardown(ctx, gameID)
	}

	if g.Players[p].Role == models.RoleMaster {
		if !g.Settings.CanInherit {
			return e.teardown(ctx, gameID)
		}
		heir := -1
		for i := range g.Players {
			if g.Players[i].ID != userID {
				heir = i
				break
			}
		}
		err := e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
			Set: map[string]any{"players." + strconv.Itoa(heir) + ".role": models.RoleMaster},
		})
		if err != nil {
			return httperr.Internal("Leave Game Error", err)
		}
		e.reg.SendToGameUser(gameID, g.Players[heir].ID, registry.Message{
			Type: "roleUpdate",
			Data: map[string]any{"isGameMaster": true},
		})
	}

	patch := &store.Patch{
		Pull: map[string]any{"players": map[string]any{"id": userID}},
		Set:  map[string]any{},
	}

	order := make([]string, 0, len(g.TurnOrder))
	for _, id := range g.TurnOrder {
		if id != userID {
			order = append(order, id)
		}
	}
	patch.Set["turnOrder"] = order

	if g.ActivePlayer == userID && len(order) > 0 {
		e.mu.Lock()
		next := NextTurnIndex(g, g.Settings.Turning, e.rng)
		e.mu.Unlock()
		nextID := g.TurnOrder[next]
		if nextID == userID {
			nextID = order[0]
		}
		patch.Set["activePlayer"] = nextID
	}
	if g.IsBusfahrer(userID) {
		patch.Pull["gameInfo.busfahrer"] = userID
	}

	if err := e.pullGame(ctx, gameID, patch); err != nil {
		return err
	}
	e.publishAction(ctx, gameID, userID, "leaveGame", nil)
	return nil
}

func (e *Engine) pullGame(ctx context.Context, gameID string, patch *store.Patch) error {
	if err := e.store.Update(ctx, store.ColGames, gameID, patch); err != nil {
		return httperr.Internal("Leave Game Error", err)
	}
	return nil
}

// teardown removes game, lobby and chat together and closes every game
// subscriber.
func (e *Engine) teardown(ctx context.Context, gameID string) error {
	e.reg.BroadcastGame(gameID, registry.Message{Type: "closeUpdate"})

	if err := e.store.Delete(ctx, store.ColGames, gameID); err != nil {
		return httperr.Internal("Leave Game Error", err)
	}
	if err := e.store.Delete(ctx, store.ColLobbies, gameID); err != nil {
		e.log.Warnf("game: deleting lobby %s: %v", gameID, err)
	}
	if err := e.store.Delete(ctx, store.ColChats, gameID); err != nil {
		e.log.Warnf("game: deleting chat %s: %v", gameID, err)
	}
	return nil
}

func parseCardIdx(s string) (int, int, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, httperr.Precondition("Card Action Error", "card index must be row-col")
	}
	row, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, httperr.Precondition("Card Action Error", "invalid row index")
	}
	col, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, httperr.Precondition("Card Action Error", "invalid column index")
	}
	if row < 0 || col < 0 {
		return 0, 0, httperr.Precondition("Card Action Error", "negative card index")
	}
	return row, col, nil
}

// evalGuess checks one predicate of the guessed card against the reference.
func evalGuess(card, reference models.Card, action string, finalRow bool) (bool, error) {
	switch action {
	case ActionHigher:
		if finalRow {
			return false, httperr.Precondition("Card Action Error", "final row takes equal or unequal")
		}
		return card.Number > reference.Number, nil
	case ActionLower:
		if finalRow {
			return false, httperr.Precondition("Card Action Error", "final row takes equal or unequal")
		}
		return card.Number < reference.Number, nil
	case ActionSame:
		if finalRow {
			return false, httperr.Precondition("Card Action Error", "final row takes equal or unequal")
		}
		return card.Number == reference.Number, nil
	case ActionEqual:
		if !finalRow {
			return false, httperr.Precondition("Card Action Error", "equal is only valid on the final row")
		}
		return card.Number == reference.Number, nil
	case ActionUnequal:
		if !finalRow {
			return false, httperr.Precondition("Card Action Error", "unequal is only valid on the final row")
		}
		return card.Number != reference.Number, nil
	default:
		return false, httperr.Precondition("Card Action Error", "unknown action %q", action)
	}
}
