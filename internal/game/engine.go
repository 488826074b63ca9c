// internal/game/engine.go
package game

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/deck"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/httperr"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

// Stats receives statistic deltas from the engine. Implemented by the
// account service; a nil Stats drops them.
type Stats interface {
	AddStats(ctx context.Context, userID string, inc, max map[string]int) error
}

// Engine drives the three-phase state machine. Every command validates
// authority and phase, then applies a single atomic patch to the game
// document; the fan-out dispatcher turns the resulting change event into
// client frames.
type Engine struct {
	store store.Store
	reg   *registry.Registry
	stats Stats
	audit *store.AuditQueue
	log   *logrus.Logger

	// chaosChance is the probability that a chaos-mode lay multiplies the
	// round drinks by the card number.
	chaosChance float64

	mu  sync.Mutex
	rng *rand.Rand

	// settleMu serializes the phase 2 round settlement. Simultaneous lays
	// may both observe the completed round; only one settlement may apply.
	settleMu sync.Mutex
}

func NewEngine(st store.Store, reg *registry.Registry, stats Stats, audit *store.AuditQueue, chaosChance float64, log *logrus.Logger) *Engine {
	return &Engine{
		store:       st,
		reg:         reg,
		stats:       stats,
		audit:       audit,
		log:         log,
		chaosChance: chaosChance,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FlipRow reveals the current round's pyramid row, master only, once per
// round.
func (e *Engine) FlipRow(ctx context.Context, gameID, userID string, idx int) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusPhase1 {
		return httperr.Precondition("Flip Row Error", "not in phase 1")
	}
	if err := e.requireMaster(g, userID, "Flip Row Error"); err != nil {
		return err
	}
	if idx != g.GameInfo.RoundNr {
		return httperr.Precondition("Flip Row Error", "wrong row for this round")
	}
	if idx < 1 || idx > len(g.Cards) {
		return httperr.Precondition("Flip Row Error", "row out of range")
	}
	if g.GameInfo.IsRowFlipped {
		return httperr.Precondition("Flip Row Error", "row already flipped")
	}

	row := g.Cards[idx-1]
	for i := range row {
		row[i].Flipped = true
	}
	err = e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
		Set: map[string]any{
			"cards." + strconv.Itoa(idx-1): row,
			"gameInfo.isRowFlipped":        true,
		},
	})
	if err != nil {
		return httperr.Internal("Flip Row Error", err)
	}
	e.publishAction(ctx, gameID, userID, "flipRow", map[string]any{"row": idx})
	return nil
}

// LayCard plays one hand card under the current phase's rules.
func (e *Engine) LayCard(ctx context.Context, gameID, userID string, cardIdx int) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	p := g.FindPlayer(userID)
	if p < 0 {
		return httperr.NotFound("Lay Card Error", "player not found")
	}
	if cardIdx < 0 || cardIdx >= len(g.Players[p].Cards) {
		return httperr.Precondition("Lay Card Error", "card index out of range")
	}
	card := g.Players[p].Cards[cardIdx]
	if card.Played {
		return httperr.Precondition("Lay Card Error", "card already played")
	}

	switch g.Status {
	case models.StatusPhase1:
		return e.layPhase1(ctx, gameID, userID, g, p, cardIdx, card.Card)
	case models.StatusPhase2:
		return e.layPhase2(ctx, gameID, userID, g, p, cardIdx, card.Card)
	default:
		return httperr.Precondition("Lay Card Error", "cards cannot be laid in this phase")
	}
}

func (e *Engine) layPhase1(ctx context.Context, gameID, userID string, g *models.Game, p, cardIdx int, card models.Card) error {
	if g.ActivePlayer != userID {
		return httperr.Forbidden("Lay Card Error", "not your turn")
	}
	if !g.GameInfo.IsRowFlipped {
		return httperr.Precondition("Lay Card Error", "row not flipped yet")
	}

	row := g.Cards[g.GameInfo.RoundNr-1]
	matched := false
	for _, laid := range row {
		if deck.Match(card, laid.Card, g.Settings.Matching) {
			matched = true
			break
		}
	}
	if !matched {
		return httperr.Precondition("Lay Card Error", "card does not match the row")
	}

	drinks := g.GameInfo.RoundNr
	if g.Settings.IsChaos {
		e.mu.Lock()
		chaos := e.rng.Float64() < e.chaosChance
		e.mu.Unlock()
		if chaos {
			drinks = card.Number * g.GameInfo.RoundNr
		}
	}

	err := e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
		Set: map[string]any{
			"players." + strconv.Itoa(p) + ".cards." + strconv.Itoa(cardIdx) + ".played": true,
		},
		Inc: map[string]int{"gameInfo.drinksPerRound": drinks},
	})
	if err != nil {
		return httperr.Internal("Lay Card Error", err)
	}
	e.addStats(ctx, userID, map[string]int{models.StatLayedCards: 1}, nil)
	e.publishAction(ctx, gameID, userID, "layCard", map[string]any{
		"card": card, "drinks": drinks,
	})
	return nil
}

func (e *Engine) layPhase2(ctx context.Context, gameID, userID string, g *models.Game, p, cardIdx int, card models.Card) error {
	set := map[string]any{
		"players." + strconv.Itoa(p) + ".cards." + strconv.Itoa(cardIdx) + ".played": true,
	}
	inc := map[string]int{}

	switch g.GameInfo.RoundNr {
	case 1:
		if g.ActivePlayer != userID {
			return httperr.Forbidden("Lay Card Error", "not your turn")
		}
		if card.Number < 2 || card.Number > 10 {
			return httperr.Precondition("Lay Card Error", "only number cards in round 1")
		}
		inc["gameInfo.drinksPerRound"] = card.Number

	case 2:
		// Face cards are laid simultaneously; activePlayer stays fixed.
		switch card.Number {
		case models.RankJack:
			inc["gameInfo.drinksPerType.JACK"] = 1
		case models.RankQueen:
			inc["gameInfo.drinksPerType.QUEEN"] = 1
		case models.RankKing:
			inc["gameInfo.drinksPerType.KING"] = 1
		default:
			return httperr.Precondition("Lay Card Error", "only face cards in round 2")
		}
		if !hasMoreOfRanks(g.Players[p], cardIdx, models.RankJack, models.RankQueen, models.RankKing) {
			set["players."+strconv.Itoa(p)+".turnInfo.hadTurn"] = true
		}

	case 3:
		if card.Number != models.RankAce {
			return httperr.Precondition("Lay Card Error", "only aces in round 3")
		}
		inc["gameInfo.hasToDown."+userID] = 1
		if !hasMoreOfRanks(g.Players[p], cardIdx, models.RankAce) {
			set["players."+strconv.Itoa(p)+".turnInfo.hadTurn"] = true
		}

	default:
		return httperr.Precondition("Lay Card Error", "phase 2 is over")
	}

	// Played cards go face down onto the shared pile so the full deck stays
	// on the document.
	pile := append([]models.LaidCard{{Card: card}}, g.Cards[0]...)
	set["cards.0"] = pile

	patch := &store.Patch{Set: set}
	if len(inc) > 0 {
		patch.Inc = inc
	}
	if err := e.store.Update(ctx, store.ColGames, gameID, patch); err != nil {
		return httperr.Internal("Lay Card Error", err)
	}

	e.addStats(ctx, userID, map[string]int{models.StatLayedCards: 1}, nil)
	e.publishAction(ctx, gameID, userID, "layCard", map[string]any{"card": card})

	// Simultaneous rounds roll over once the last player runs dry.
	if g.GameInfo.RoundNr == 2 || g.GameInfo.RoundNr == 3 {
		return e.maybeFinishSimultaneousRound(ctx, gameID)
	}
	return nil
}

// hasMoreOfRanks reports whether the player still holds an unplayed card of
// any given rank besides the one at exceptIdx.
func hasMoreOfRanks(p models.GamePlayer, exceptIdx int, ranks ...int) bool {
	for i, c := range p.Cards {
		if i == exceptIdx || c.Played {
			continue
		}
		for _, r := range ranks {
			if c.Number == r {
				return true
			}
		}
	}
	return false
}

// roundRanks returns the ranks a phase 2 round accepts.
func roundRanks(round int) []int {
	switch round {
	case 2:
		return []int{models.RankJack, models.RankQueen, models.RankKing}
	case 3:
		return []int{models.RankAce}
	default:
		return nil
	}
}

// maybeFinishSimultaneousRound advances phase 2 rounds 2 and 3 once every
// player is done. Round 2 settles the gender drink math. The check and the
// settlement run under settleMu: concurrent lays may both see the round
// complete, and the drink increments must apply exactly once. The loser of
// the lock reloads a document whose roundNr already advanced and backs off.
func (e *Engine) maybeFinishSimultaneousRound(ctx context.Context, gameID string) error {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()

	// A settled round may leave every player done for the next one too, so
	// settle until a round with open hands is reached.
	for {
		advanced, err := e.settleRound(ctx, gameID)
		if err != nil || !advanced {
			return err
		}
	}
}

// settleRound applies at most one round transition. Reports whether it did.
func (e *Engine) settleRound(ctx context.Context, gameID string) (bool, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return false, err
	}
	if g.Status != models.StatusPhase2 || !RoundComplete(g) {
		return false, nil
	}
	if g.GameInfo.RoundNr != 2 && g.GameInfo.RoundNr != 3 {
		return false, nil
	}

	nextRound := g.GameInfo.RoundNr + 1
	set := map[string]any{"gameInfo.roundNr": nextRound}
	inc := map[string]int{}
	for i := range g.Players {
		// A player who holds none of the next round's ranks is done already.
		done := len(roundRanks(nextRound)) > 0 &&
			!hasMoreOfRanks(g.Players[i], -1, roundRanks(nextRound)...)
		set["players."+strconv.Itoa(i)+".turnInfo.hadTurn"] = done
	}

	if g.GameInfo.RoundNr == 2 {
		dpt := g.GameInfo.DrinksPerType
		for i, p := range g.Players {
			var drinks int
			switch p.Gender {
			case models.GenderMale:
				drinks = dpt.Jack + dpt.King
			case models.GenderFemale:
				drinks = dpt.Queen + dpt.King
			default:
				drinks = dpt.Jack + dpt.Queen + dpt.King
			}
			if drinks > 0 {
				inc["players."+strconv.Itoa(i)+".turnInfo.drinksReceived"] = drinks
				e.addStats(ctx, p.ID,
					map[string]int{models.StatDrinksSelf: drinks},
					map[string]int{models.StatMaxDrinksSelf: drinks})
			}
		}
	}
	if g.GameInfo.RoundNr == 3 {
		set["gameInfo.nextPhaseEnabled"] = true
	}

	patch := &store.Patch{Set: set}
	if len(inc) > 0 {
		patch.Inc = inc
	}
	if err := e.store.Update(ctx, store.ColGames, gameID, patch); err != nil {
		return false, httperr.Internal("Lay Card Error", err)
	}
	// Rounds past 3 have no simultaneous settlement left.
	return nextRound == 2 || nextRound == 3, nil
}

// GiveDrink assigns or withdraws one drink for a target player, Avatar
// giving mode only. The total allocation is bounded by drinksPerRound.
func (e *Engine) GiveDrink(ctx context.Context, gameID, userID, targetID string, delta int) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusPhase1 {
		return httperr.Precondition("Give Drink Error", "not in phase 1")
	}
	if g.Settings.Giving != models.GivingAvatar {
		return httperr.Precondition("Give Drink Error", "drinks are not assigned in this mode")
	}
	if g.ActivePlayer != userID {
		return httperr.Forbidden("Give Drink Error", "not your turn")
	}
	t := g.FindPlayer(targetID)
	if t < 0 {
		return httperr.NotFound("Give Drink Error", "player not found")
	}
	if delta != 1 && delta != -1 {
		return httperr.Precondition("Give Drink Error", "delta must be +1 or -1")
	}

	total := allocatedDrinks(g)
	if delta > 0 && total >= g.GameInfo.DrinksPerRound {
		return httperr.Precondition("Give Drink Error", "all drinks already assigned")
	}
	if delta < 0 && g.Players[t].TurnInfo.DrinksPerPlayer <= 0 {
		return httperr.Precondition("Give Drink Error", "nothing assigned to this player")
	}

	err = e.store.Update(ctx, store.ColGames, gameID, &store.Patch{
		Inc: map[string]int{"players." + strconv.Itoa(t) + ".turnInfo.drinksPerPlayer": delta},
	})
	if err != nil {
		return httperr.Internal("Give Drink Error", err)
	}
	return nil
}

func allocatedDrinks(g *models.Game) int {
	total := 0
	for i := range g.Players {
		total += g.Players[i].TurnInfo.DrinksPerPlayer
	}
	return total
}

// NextPlayer ends the active player's turn. Rolling over a full round resets
// the per-round counters; round 6 in phase 1 and round 2 in phase 2 arm the
// master's phase switch.
func (e *Engine) NextPlayer(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.ActivePlayer != userID {
		return httperr.Forbidden("Next Player Error", "not your turn")
	}
	p := g.FindPlayer(userID)
	if p < 0 {
		return httperr.NotFound("Next Player Error", "player not found")
	}

	switch g.Status {
	case models.StatusPhase1:
		if !g.GameInfo.IsRowFlipped {
			return httperr.Precondition("Next Player Error", "row not flipped yet")
		}
		if g.Settings.Giving == models.GivingAvatar &&
			allocatedDrinks(g) < g.GameInfo.DrinksPerRound {
			return httperr.Precondition("Next Player Error", "assign all drinks first")
		}
	case models.StatusPhase2:
		if g.GameInfo.RoundNr != 1 {
			return httperr.Precondition("Next Player Error", "no turn rotation in this round")
		}
	default:
		return httperr.Precondition("Next Player Error", "no turn rotation in this phase")
	}

	// Credit the finished turn before computing the rotation.
	g.Players[p].TurnInfo.HadTurn = true

	set := map[string]any{
		"players." + strconv.Itoa(p) + ".turnInfo.hadTurn": true,
	}
	inc := map[string]int{}

	if g.Status == models.StatusPhase1 {
		if g.Settings.Giving == models.GivingDefault && g.GameInfo.DrinksPerRound > 0 {
			e.addStats(ctx, userID,
				map[string]int{models.StatDrinksGiven: g.GameInfo.DrinksPerRound},
				map[string]int{models.StatMaxDrinksGiven: g.GameInfo.DrinksPerRound})
		}
	} else if g.GameInfo.DrinksPerRound > 0 {
		// Phase 2 round 1: the active player drinks their own lay total.
		inc["players."+strconv.Itoa(p)+".turnInfo.drinksReceived"] = g.GameInfo.DrinksPerRound
		e.addStats(ctx, userID,
			map[string]int{models.StatDrinksSelf: g.GameInfo.DrinksPerRound},
			map[string]int{models.StatMaxDrinksSelf: g.GameInfo.DrinksPerRound})
	}

	// In phase 1 drinksPerRound carries through the whole round and only
	// resets at the rollover; phase 2 counts each turn on its own.
	if RoundComplete(g) {
		e.rolloverRound(ctx, g, set, inc)
	} else {
		e.mu.Lock()
		next := NextTurnIndex(g, g.Settings.Turning, e.rng)
		e.mu.Unlock()
		set["activePlayer"] = g.TurnOrder[next]
		if g.Status == models.StatusPhase2 {
			set["gameInfo.drinksPerRound"] = 0
		}
	}

	patch := &store.Patch{Set: set}
	if len(inc) > 0 {
		patch.Inc = inc
	}
	if err := e.store.Update(ctx, store.ColGames, gameID, patch); err != nil {
		return httperr.Internal("Next Player Error", err)
	}
	e.publishAction(ctx, gameID, userID, "nextPlayer", nil)

	// A phase 2 rollover into the face-card round may already be complete.
	if g.Status == models.StatusPhase2 && RoundComplete(g) {
		return e.maybeFinishSimultaneousRound(ctx, gameID)
	}
	return nil
}

// rolloverRound closes a full pass of the turn order: hadTurn clears, Avatar
// allocations convert into received drinks and the round counter advances.
func (e *Engine) rolloverRound(ctx context.Context, g *models.Game, set map[string]any, inc map[string]int) {
	for i := range g.Players {
		done := false
		if g.Status == models.StatusPhase2 {
			// Entering the simultaneous face-card round; players without
			// face cards are done immediately.
			done = !hasMoreOfRanks(g.Players[i], -1, roundRanks(2)...)
		}
		set["players."+strconv.Itoa(i)+".turnInfo.hadTurn"] = done
		if d := g.Players[i].TurnInfo.DrinksPerPlayer; d > 0 {
			inc["players."+strconv.Itoa(i)+".turnInfo.drinksReceived"] = d
			set["players."+strconv.Itoa(i)+".turnInfo.drinksPerPlayer"] = 0
			e.addStats(ctx, g.Players[i].ID,
				map[string]int{models.StatDrinksSelf: d},
				map[string]int{models.StatMaxDrinksSelf: d})
		}
	}
	set["gameInfo.roundNr"] = g.GameInfo.RoundNr + 1
	set["gameInfo.drinksPerRound"] = 0
	set["activePlayer"] = g.TurnOrder[0]

	if g.Status == models.StatusPhase1 {
		set["gameInfo.isRowFlipped"] = false
		if g.GameInfo.RoundNr+1 == 6 {
			set["gameInfo.nextPhaseEnabled"] = true
		}
	}
	// Phase 2 round 1 -> 2 switches to simultaneous laying; activePlayer is
	// left at the head of the order and stays fixed.
}

// StartPhase2 switches the game into hand disposal, master only.
func (e *Engine) StartPhase2(ctx context.Context, gameID, userID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.StatusPhase1 {
		return httperr.Precondition("Phase Error", "not in phase 1")
	}
	if err := e.requireMaster(g, userID, "Phase Error"); err != nil {
		return err
	}
	if !g.GameInfo.NextPhaseEnabled {
		return httperr.Precondition("Phase Error", "phase 1 is not finished")
	}

	// The pyramid collapses into the face-down discard pile; hands stay out.
	pile := []models.LaidCard{}
	for _, row := range g.Cards {
		for _, c := range row {
			pile = append(pile, models.LaidCard{Card: c.Card})
		}
	}

	set := map[string]any{
		"status":                    models.StatusPhase2,
		"cards":                     [][]models.LaidCard{pile},
		"activePlayer":              g.TurnOrder[0],
		"gameInfo.roundNr":          1,
		"gameInfo.drinksPerRound":   0,
		"gameInfo.isRowFlipped":     false,
		"gameInfo.nextPhaseEnabled": false,
		"gameInfo.drinksPerType":    models.DrinksPerType{},
		"gameInfo.hasToDown":        map[string]int{},
	}
	for i := range g.Players {
		set["players."+strconv.Itoa(i)+".turnInfo.hadTurn"] = false
		set["players."+strconv.Itoa(i)+".turnInfo.drinksPerPlayer"] = 0
	}

	if err := e.store.Update(ctx, store.ColGames, gameID, &store.Patch{Set: set}); err != nil {
		return httperr.Internal("Phase Error", err)
	}
	e.publishAction(ctx, gameID, userID, "startPhase2", nil)
	return nil
}

// Info returns the current game document for the read endpoints.
func (e *Engine) Info(ctx context.Context, gameID string) (*models.Game, error) {
	return e.load(ctx, gameID)
}

func (e *Engine) load(ctx context.Context, gameID string) (*models.Game, error) {
	doc, err := e.store.Read(ctx, store.ColGames, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("Game Error", "game not found")
	}
	if err != nil {
		return nil, httperr.Internal("Game Error", err)
	}
	var g models.Game
	if err := store.Decode(doc, &g); err != nil {
		return nil, httperr.Internal("Game Error", err)
	}
	return &g, nil
}

func (e *Engine) requireMaster(g *models.Game, userID, title string) error {
	p := g.FindPlayer(userID)
	if p < 0 {
		return httperr.NotFound(title, "player not found")
	}
	if g.Players[p].Role != models.RoleMaster {
		return httperr.Forbidden(title, "only the game master may do this")
	}
	return nil
}

func (e *Engine) addStats(ctx context.Context, userID string, inc, max map[string]int) {
	if e.stats == nil {
		return
	}
	if err := e.stats.AddStats(ctx, userID, inc, max); err != nil {
		e.log.Warnf("game: recording stats for %s: %v", userID, err)
	}
}

func (e *Engine) publishAction(ctx context.Context, gameID, userID, action string, payload map[string]any) {
	e.audit.Publish(ctx, store.ActionRecord{
		GameID:     gameID,
		ActorID:    userID,
		ActionType: action,
		Payload:    payload,
	})
}
