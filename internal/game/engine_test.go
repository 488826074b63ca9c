// internal/game/engine_test.go
package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/deck"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
)

type stubStats struct {
	mu  sync.Mutex
	inc map[string]map[string]int
	max map[string]map[string]int
}

func newStubStats() *stubStats {
	return &stubStats{inc: map[string]map[string]int{}, max: map[string]map[string]int{}}
}

func (s *stubStats) AddStats(_ context.Context, userID string, inc, max map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inc[userID] == nil {
		s.inc[userID] = map[string]int{}
		s.max[userID] = map[string]int{}
	}
	for k, v := range inc {
		s.inc[userID][k] += v
	}
	for k, v := range max {
		if v > s.max[userID][k] {
			s.max[userID][k] = v
		}
	}
	return nil
}

func (s *stubStats) get(userID, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inc[userID][key]
}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *registry.Registry, *stubStats, context.Context) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	st := store.NewMemoryStore()
	reg := registry.New()
	stats := newStubStats()
	return NewEngine(st, reg, stats, nil, 0, log), st, reg, stats, context.Background()
}

func card(n int, s models.Suit) models.Card { return models.Card{Number: n, Suit: s} }

func testRng() *rand.Rand { return rand.New(rand.NewSource(1)) }

func hand(cards ...models.Card) []models.PlayerCard {
	out := make([]models.PlayerCard, len(cards))
	for i, c := range cards {
		out[i] = models.PlayerCard{Card: c, Flipped: true}
	}
	return out
}

// phase1Game is a small deterministic phase 1 table: three players, five
// one-card pyramid rows.
func phase1Game(settings models.GameSettings) *models.Game {
	return &models.Game{
		Status: models.StatusPhase1,
		Players: []models.GamePlayer{
			{ID: "p1", Name: "Anna", Role: models.RoleMaster, Gender: models.GenderFemale,
				Cards: hand(card(5, models.SuitHearts), card(9, models.SuitClubs))},
			{ID: "p2", Name: "Ben", Role: models.RolePlayer, Gender: models.GenderMale,
				Cards: hand(card(5, models.SuitSpades), card(12, models.SuitHearts))},
			{ID: "p3", Name: "Carla", Role: models.RolePlayer, Gender: models.GenderOther,
				Cards: hand(card(7, models.SuitDiamonds), card(14, models.SuitClubs))},
		},
		Cards: [][]models.LaidCard{
			{{Card: card(5, models.SuitDiamonds)}},
			{{Card: card(8, models.SuitHearts)}},
			{{Card: card(2, models.SuitClubs)}},
			{{Card: card(11, models.SuitSpades)}},
			{{Card: card(3, models.SuitHearts)}},
		},
		ActivePlayer: "p1",
		TurnOrder:    []string{"p1", "p2", "p3"},
		GameInfo:     models.GameInfo{RoundNr: 1, HasToDown: map[string]int{}},
		Settings:     settings,
	}
}

func insertGame(t *testing.T, st *store.MemoryStore, ctx context.Context, id string, g *models.Game) {
	t.Helper()
	doc, err := store.Encode(g)
	require.NoError(t, err)
	require.NoError(t, st.Insert(ctx, store.ColGames, id, doc))
}

func loadGame(t *testing.T, st *store.MemoryStore, ctx context.Context, id string) *models.Game {
	t.Helper()
	doc, err := st.Read(ctx, store.ColGames, id)
	require.NoError(t, err)
	var g models.Game
	require.NoError(t, store.Decode(doc, &g))
	return &g
}

func TestFlipRowIsMasterOnlyAndMonotonic(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase1Game(models.DefaultSettings()))

	// Laying before the flip is rejected.
	require.Error(t, e.LayCard(ctx, "g1", "p1", 0))

	require.Error(t, e.FlipRow(ctx, "g1", "p2", 1))
	require.Error(t, e.FlipRow(ctx, "g1", "p1", 2))
	require.NoError(t, e.FlipRow(ctx, "g1", "p1", 1))

	g := loadGame(t, st, ctx, "g1")
	assert.True(t, g.GameInfo.IsRowFlipped)
	assert.True(t, g.Cards[0][0].Flipped)

	require.Error(t, e.FlipRow(ctx, "g1", "p1", 1))
}

func TestPhase1HappyPathRound(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase1Game(models.DefaultSettings()))

	require.NoError(t, e.FlipRow(ctx, "g1", "p1", 1))

	// p1's card 0 is a 5, matching the row's 5 by number.
	require.NoError(t, e.LayCard(ctx, "g1", "p1", 0))
	g := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 1, g.GameInfo.DrinksPerRound)
	assert.True(t, g.Players[0].Cards[0].Played)

	// The 9 does not match and the 5 cannot be laid twice.
	require.Error(t, e.LayCard(ctx, "g1", "p1", 1))
	require.Error(t, e.LayCard(ctx, "g1", "p1", 0))

	require.NoError(t, e.NextPlayer(ctx, "g1", "p1"))
	g = loadGame(t, st, ctx, "g1")
	assert.Equal(t, "p2", g.ActivePlayer)
	assert.True(t, g.Players[0].TurnInfo.HadTurn)
}

func TestPhase1OnlyActivePlayerLays(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase1Game(models.DefaultSettings()))
	require.NoError(t, e.FlipRow(ctx, "g1", "p1", 1))
	require.Error(t, e.LayCard(ctx, "g1", "p2", 0))
}

func TestRoundRollover(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase1Game(models.DefaultSettings()))

	require.NoError(t, e.FlipRow(ctx, "g1", "p1", 1))
	require.NoError(t, e.LayCard(ctx, "g1", "p1", 0))
	require.NoError(t, e.NextPlayer(ctx, "g1", "p1"))
	require.NoError(t, e.NextPlayer(ctx, "g1", "p2"))
	require.NoError(t, e.NextPlayer(ctx, "g1", "p3"))

	g := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 2, g.GameInfo.RoundNr)
	assert.Equal(t, 0, g.GameInfo.DrinksPerRound)
	assert.False(t, g.GameInfo.IsRowFlipped)
	assert.Equal(t, "p1", g.ActivePlayer)
	for _, p := range g.Players {
		assert.False(t, p.TurnInfo.HadTurn)
	}
}

func TestRandomModeVisitsEveryPlayerOncePerRound(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	settings := models.DefaultSettings()
	settings.Turning = models.ModeRandom
	insertGame(t, st, ctx, "g1", phase1Game(settings))

	require.NoError(t, e.FlipRow(ctx, "g1", "p1", 1))

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		g := loadGame(t, st, ctx, "g1")
		require.Equal(t, 1, g.GameInfo.RoundNr)
		seen[g.ActivePlayer]++
		require.NoError(t, e.NextPlayer(ctx, "g1", g.ActivePlayer))
	}

	g := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 2, g.GameInfo.RoundNr)
	assert.Equal(t, map[string]int{"p1": 1, "p2": 1, "p3": 1}, seen)
}

func TestPhase1EnablesPhase2AfterFiveRounds(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase1Game(models.DefaultSettings()))

	for round := 1; round <= 5; round++ {
		require.NoError(t, e.FlipRow(ctx, "g1", "p1", round))
		require.NoError(t, e.NextPlayer(ctx, "g1", "p1"))
		require.NoError(t, e.NextPlayer(ctx, "g1", "p2"))
		require.NoError(t, e.NextPlayer(ctx, "g1", "p3"))
	}

	g := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 6, g.GameInfo.RoundNr)
	assert.True(t, g.GameInfo.NextPhaseEnabled)

	// Only the master flips into phase 2.
	require.Error(t, e.StartPhase2(ctx, "g1", "p2"))
	require.NoError(t, e.StartPhase2(ctx, "g1", "p1"))
	g = loadGame(t, st, ctx, "g1")
	assert.Equal(t, models.StatusPhase2, g.Status)
	assert.Equal(t, 1, g.GameInfo.RoundNr)
	require.Len(t, g.Cards, 1)
	// The pyramid collapsed onto the pile.
	assert.Len(t, g.Cards[0], 5)
}

func TestAvatarGivingGate(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	settings := models.DefaultSettings()
	settings.Giving = models.GivingAvatar
	g := phase1Game(settings)
	g.GameInfo.IsRowFlipped = true
	g.GameInfo.DrinksPerRound = 3
	insertGame(t, st, ctx, "g1", g)

	// Blocked until every drink is assigned.
	require.Error(t, e.NextPlayer(ctx, "g1", "p1"))

	require.NoError(t, e.GiveDrink(ctx, "g1", "p1", "p2", 1))
	require.NoError(t, e.GiveDrink(ctx, "g1", "p1", "p2", 1))
	require.Error(t, e.NextPlayer(ctx, "g1", "p1"))
	require.NoError(t, e.GiveDrink(ctx, "g1", "p1", "p3", 1))

	// Over-assignment and under-withdrawal are rejected.
	require.Error(t, e.GiveDrink(ctx, "g1", "p1", "p3", 1))
	require.Error(t, e.GiveDrink(ctx, "g1", "p1", "p1", -1))

	require.NoError(t, e.NextPlayer(ctx, "g1", "p1"))
	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 2, got.Players[1].TurnInfo.DrinksPerPlayer)
	assert.Equal(t, 1, got.Players[2].TurnInfo.DrinksPerPlayer)
}

func TestAvatarAllocationsConvertAtRollover(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	settings := models.DefaultSettings()
	settings.Giving = models.GivingAvatar
	g := phase1Game(settings)
	g.GameInfo.IsRowFlipped = true
	g.Players[1].TurnInfo.HadTurn = true
	g.Players[2].TurnInfo.HadTurn = true
	g.Players[1].TurnInfo.DrinksPerPlayer = 2
	g.GameInfo.DrinksPerRound = 2
	insertGame(t, st, ctx, "g1", g)

	require.NoError(t, e.NextPlayer(ctx, "g1", "p1"))
	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 2, got.Players[1].TurnInfo.DrinksReceived)
	assert.Equal(t, 0, got.Players[1].TurnInfo.DrinksPerPlayer)
	assert.Equal(t, 2, got.GameInfo.RoundNr)
}

func phase2Game(round int) *models.Game {
	g := phase1Game(models.DefaultSettings())
	g.Status = models.StatusPhase2
	g.Cards = [][]models.LaidCard{{}}
	g.GameInfo.RoundNr = round
	return g
}

func TestPhase2Round1OnlyNumberCards(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	g := phase2Game(1)
	g.Players[0].Cards = hand(card(7, models.SuitHearts), card(12, models.SuitClubs))
	insertGame(t, st, ctx, "g1", g)

	require.Error(t, e.LayCard(ctx, "g1", "p1", 1))
	require.NoError(t, e.LayCard(ctx, "g1", "p1", 0))

	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 7, got.GameInfo.DrinksPerRound)
	require.Len(t, got.Cards[0], 1)
	assert.False(t, got.Cards[0][0].Flipped)

	// Ending the turn drinks the total and resets it.
	require.NoError(t, e.NextPlayer(ctx, "g1", "p1"))
	got = loadGame(t, st, ctx, "g1")
	assert.Equal(t, 7, got.Players[0].TurnInfo.DrinksReceived)
	assert.Equal(t, 0, got.GameInfo.DrinksPerRound)
}

func TestPhase2Round2GenderMath(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	g := phase2Game(2)
	// Final tallies: JACK 2, QUEEN 1, KING 3.
	g.Players[0].Cards = hand(card(11, models.SuitHearts), card(13, models.SuitHearts))  // female
	g.Players[1].Cards = hand(card(12, models.SuitSpades), card(13, models.SuitSpades))  // male
	g.Players[2].Cards = hand(card(11, models.SuitClubs), card(13, models.SuitDiamonds)) // other
	insertGame(t, st, ctx, "g1", g)

	// Simultaneous: every player lays regardless of activePlayer.
	require.NoError(t, e.LayCard(ctx, "g1", "p1", 0))
	require.NoError(t, e.LayCard(ctx, "g1", "p2", 0))
	require.NoError(t, e.LayCard(ctx, "g1", "p3", 0))
	require.NoError(t, e.LayCard(ctx, "g1", "p1", 1))
	require.NoError(t, e.LayCard(ctx, "g1", "p2", 1))
	require.NoError(t, e.LayCard(ctx, "g1", "p3", 1))

	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 3, got.GameInfo.RoundNr)
	// FEMALE = QUEEN + KING, MALE = JACK + KING, OTHER = all three.
	assert.Equal(t, 4, got.Players[0].TurnInfo.DrinksReceived)
	assert.Equal(t, 5, got.Players[1].TurnInfo.DrinksReceived)
	assert.Equal(t, 6, got.Players[2].TurnInfo.DrinksReceived)
}

func TestPhase2Round2SettlesExactlyOnce(t *testing.T) {
	e, st, _, stats, ctx := newTestEngine(t)
	g := phase2Game(2)
	// The round is complete but not yet settled. p1 keeps an unplayed ace
	// so round 3 stays open after the transition.
	g.Players[0].Cards = hand(card(13, models.SuitHearts), card(14, models.SuitHearts))
	g.Players[1].Cards = hand(card(11, models.SuitSpades))
	g.Players[2].Cards = hand(card(12, models.SuitClubs))
	for i := range g.Players {
		g.Players[i].Cards[0].Played = true
		g.Players[i].TurnInfo.HadTurn = true
	}
	g.GameInfo.DrinksPerType = models.DrinksPerType{Jack: 1, Queen: 1, King: 1}
	insertGame(t, st, ctx, "g1", g)

	// Two lays may race into the settlement; the drink math must apply once.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.maybeFinishSimultaneousRound(ctx, "g1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 3, got.GameInfo.RoundNr)
	assert.Equal(t, 2, got.Players[0].TurnInfo.DrinksReceived)
	assert.Equal(t, 2, got.Players[1].TurnInfo.DrinksReceived)
	assert.Equal(t, 3, got.Players[2].TurnInfo.DrinksReceived)
	assert.Equal(t, 2, stats.get("p1", models.StatDrinksSelf))
	assert.Equal(t, 2, stats.get("p2", models.StatDrinksSelf))
	assert.Equal(t, 3, stats.get("p3", models.StatDrinksSelf))
	assert.False(t, got.Players[0].TurnInfo.HadTurn)
	assert.True(t, got.Players[1].TurnInfo.HadTurn)
}

func TestPhase2Round3AcesAndPhaseGate(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	g := phase2Game(3)
	g.Players[0].Cards = hand(card(14, models.SuitHearts))
	g.Players[1].Cards = hand(card(14, models.SuitSpades))
	g.Players[2].Cards = hand(card(9, models.SuitClubs))
	g.Players[2].Cards[0].Played = true
	g.Players[2].TurnInfo.HadTurn = true
	insertGame(t, st, ctx, "g1", g)

	require.Error(t, e.LayCard(ctx, "g1", "p3", 0))

	require.NoError(t, e.LayCard(ctx, "g1", "p1", 0))
	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, 1, got.GameInfo.HasToDown["p1"])
	assert.Equal(t, 3, got.GameInfo.RoundNr)

	require.NoError(t, e.LayCard(ctx, "g1", "p2", 0))
	got = loadGame(t, st, ctx, "g1")
	assert.Equal(t, 4, got.GameInfo.RoundNr)
	assert.True(t, got.GameInfo.NextPhaseEnabled)
}

func phase2Done() *models.Game {
	g := phase2Game(4)
	g.GameInfo.NextPhaseEnabled = true
	// p1 has two unplayed cards, the rest one each.
	g.Players[0].Cards = hand(card(5, models.SuitHearts), card(6, models.SuitHearts))
	g.Players[1].Cards = hand(card(5, models.SuitSpades))
	g.Players[2].Cards = hand(card(5, models.SuitClubs))
	return g
}

func TestStartPhase3ElectsAndLaysOutRide(t *testing.T) {
	e, st, _, stats, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase2Done())

	require.NoError(t, e.StartPhase3(ctx, "g1", "p1"))

	g := loadGame(t, st, ctx, "g1")
	assert.Equal(t, models.StatusPhase3, g.Status)
	assert.Equal(t, []string{"p1"}, g.GameInfo.Busfahrer)
	assert.Equal(t, "p1", g.ActivePlayer)
	assert.Equal(t, 1, stats.get("p1", models.StatGamesBus))

	require.Len(t, g.Cards, len(RideRows))
	for r, n := range RideRows {
		assert.Len(t, g.Cards[r], n)
	}
	assert.True(t, g.Cards[0][1].Flipped)
	assert.True(t, g.Cards[8][0].Flipped)
	require.NotNil(t, g.GameInfo.LastCard)
	assert.Equal(t, g.Cards[0][1].Card, *g.GameInfo.LastCard)

	// Ride plus remainder is a full double deck.
	total := len(g.Deck)
	for _, row := range g.Cards {
		total += len(row)
	}
	assert.Equal(t, deck.Size, total)
}

// rideAction picks an unflipped card in the current row and the predicate
// that makes the guess correct (or incorrect).
func rideAction(g *models.Game, correct bool) (string, string) {
	r := g.GameInfo.CurrentRow
	col := -1
	for i, c := range g.Cards[r] {
		if !c.Flipped {
			col = i
			break
		}
	}
	c := g.Cards[r][col].Card

	final := r == len(g.Cards)-1
	var action string
	if final {
		ref := g.Cards[r][0].Card
		if (c.Number == ref.Number) == correct {
			action = ActionEqual
		} else {
			action = ActionUnequal
		}
	} else {
		ref := *g.GameInfo.LastCard
		switch {
		case c.Number > ref.Number:
			action = ActionHigher
		case c.Number < ref.Number:
			action = ActionLower
		default:
			action = ActionSame
		}
		if !correct {
			if action == ActionHigher {
				action = ActionLower
			} else {
				action = ActionHigher
			}
		}
	}
	return fmt.Sprintf("%d-%d", r, col), action
}

func TestPhase3WinCreditsDriverOnce(t *testing.T) {
	e, st, _, stats, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase2Done())
	require.NoError(t, e.StartPhase3(ctx, "g1", "p1"))

	for i := 0; i < len(RideRows); i++ {
		g := loadGame(t, st, ctx, "g1")
		idx, action := rideAction(g, true)
		require.NoError(t, e.CardAction(ctx, "g1", "p1", idx, action, ""))
	}

	g := loadGame(t, st, ctx, "g1")
	assert.True(t, g.GameInfo.GameOver)
	assert.Equal(t, models.StatusFinished, g.Status)
	assert.Equal(t, len(RideRows), g.GameInfo.CurrentRow)

	assert.Equal(t, 1, stats.get("p1", models.StatGamesWon))
	for _, id := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, 1, stats.get(id, models.StatGamesPlayed))
	}

	// No further guesses once the game is over.
	idx, action := "8-1", ActionEqual
	require.Error(t, e.CardAction(ctx, "g1", "p1", idx, action, ""))
}

func TestPhase3OnlyBusfahrerGuesses(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase2Done())
	require.NoError(t, e.StartPhase3(ctx, "g1", "p1"))

	g := loadGame(t, st, ctx, "g1")
	idx, action := rideAction(g, true)
	require.Error(t, e.CardAction(ctx, "g1", "p2", idx, action, ""))
}

func TestPhase3WrongGuessAndRetry(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	insertGame(t, st, ctx, "g1", phase2Done())
	require.NoError(t, e.StartPhase3(ctx, "g1", "p1"))

	// Two correct guesses, then a deliberate miss at row 2.
	for i := 0; i < 2; i++ {
		g := loadGame(t, st, ctx, "g1")
		idx, action := rideAction(g, true)
		require.NoError(t, e.CardAction(ctx, "g1", "p1", idx, action, ""))
	}
	g := loadGame(t, st, ctx, "g1")
	idx, action := rideAction(g, false)
	require.NoError(t, e.CardAction(ctx, "g1", "p1", idx, action, ""))

	g = loadGame(t, st, ctx, "g1")
	assert.True(t, g.GameInfo.TryOver)
	assert.Equal(t, 3, g.GameInfo.DrinksPerTry)

	// Guessing is locked until the master retries.
	require.Error(t, e.CardAction(ctx, "g1", "p1", "2-1", ActionHigher, ""))
	require.Error(t, e.RetryPhase3(ctx, "g1", "p2"))

	feed := st.Watch(store.ColGames)
	require.NoError(t, e.RetryPhase3(ctx, "g1", "p1"))

	// First update clears the active player, the second rebuilds the ride.
	ev := <-feed
	assert.Contains(t, ev.UpdatedFields, "activePlayer")
	ev = <-feed
	assert.Contains(t, ev.UpdatedFields, "gameInfo.currentRow")

	g = loadGame(t, st, ctx, "g1")
	assert.Equal(t, 0, g.GameInfo.CurrentRow)
	assert.False(t, g.GameInfo.TryOver)
	assert.Equal(t, 0, g.GameInfo.DrinksPerTry)
	assert.Empty(t, g.ActivePlayer)
	flipped := 0
	for _, row := range g.Cards {
		for _, c := range row {
			if c.Flipped {
				flipped++
			}
		}
	}
	// Only the two seed cards.
	assert.Equal(t, 2, flipped)

	// The cleared turn pointer does not block the ride.
	g = loadGame(t, st, ctx, "g1")
	idx, action = rideAction(g, true)
	require.NoError(t, e.CardAction(ctx, "g1", "p1", idx, action, ""))
}

func TestOpenNewGame(t *testing.T) {
	e, st, reg, _, ctx := newTestEngine(t)
	g := phase2Done()
	g.Status = models.StatusFinished
	g.GameInfo.GameOver = true
	insertGame(t, st, ctx, "g1", g)
	require.NoError(t, st.Insert(ctx, store.ColLobbies, "g1", map[string]any{
		"status": models.LobbyStarted,
	}))

	conn := registry.NewConn("p2")
	reg.Subscribe(conn, registry.ScopeGame, "g1")

	require.Error(t, e.OpenNewGame(ctx, "g1", "p2"))
	require.NoError(t, e.OpenNewGame(ctx, "g1", "p1"))

	_, err := st.Read(ctx, store.ColGames, "g1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	lobDoc, err := st.Read(ctx, store.ColLobbies, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.LobbyWaiting, lobDoc["status"])

	select {
	case msg := <-conn.OutChan:
		assert.Equal(t, "newGameUpdate", msg.Type)
	default:
		t.Fatal("expected newGameUpdate broadcast")
	}
}

func TestLeaveRemovesPlayerAndTurnOrder(t *testing.T) {
	e, st, _, _, ctx := newTestEngine(t)
	g := phase1Game(models.DefaultSettings())
	g.ActivePlayer = "p2"
	insertGame(t, st, ctx, "g1", g)

	require.NoError(t, e.Leave(ctx, "g1", "p2"))
	got := loadGame(t, st, ctx, "g1")
	assert.Len(t, got.Players, 2)
	assert.Equal(t, []string{"p1", "p3"}, got.TurnOrder)
	assert.Equal(t, "p3", got.ActivePlayer)
}

func TestLeaveMasterInheritsOrTearsDown(t *testing.T) {
	e, st, reg, _, ctx := newTestEngine(t)

	g := phase1Game(models.DefaultSettings())
	g.Settings.CanInherit = true
	insertGame(t, st, ctx, "g1", g)

	heir := registry.NewConn("p2")
	reg.Subscribe(heir, registry.ScopeGame, "g1")

	require.NoError(t, e.Leave(ctx, "g1", "p1"))
	got := loadGame(t, st, ctx, "g1")
	assert.Equal(t, models.RoleMaster, got.Players[0].Role)
	assert.Equal(t, "p2", got.Players[0].ID)
	select {
	case msg := <-heir.OutChan:
		assert.Equal(t, "roleUpdate", msg.Type)
	default:
		t.Fatal("expected roleUpdate for heir")
	}

	// Without inheritance the table closes.
	g2 := phase1Game(models.DefaultSettings())
	insertGame(t, st, ctx, "g2", g2)
	require.NoError(t, e.Leave(ctx, "g2", "p1"))
	_, err := st.Read(ctx, store.ColGames, "g2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Leaving an already deleted game is a no-op for cleanup.
	assert.NoError(t, e.Leave(ctx, "g2", "p2"))
}

func TestBuildConservesFullDeck(t *testing.T) {
	lob := &models.Lobby{
		Players: []models.LobbyPlayer{
			{ID: "a", Name: "Anna", Role: models.RoleMaster},
			{ID: "b", Name: "Ben", Role: models.RolePlayer},
			{ID: "c", Name: "Carla", Role: models.RolePlayer},
		},
		Settings: models.DefaultSettings(),
	}
	g := Build(lob, testRng())

	counts := map[models.Card]int{}
	for _, p := range g.Players {
		assert.Len(t, p.Cards, HandSize)
		for _, c := range p.Cards {
			counts[c.Card]++
			assert.True(t, c.Flipped)
		}
	}
	for r, row := range g.Cards {
		assert.Len(t, row, PyramidRows[r])
		for _, c := range row {
			counts[c.Card]++
			assert.False(t, c.Flipped)
		}
	}
	for _, c := range g.Deck {
		counts[c]++
	}

	want := map[models.Card]int{}
	for _, c := range deck.New() {
		want[c]++
	}
	assert.Equal(t, want, counts)
	assert.Equal(t, "a", g.ActivePlayer)
	assert.Equal(t, []string{"a", "b", "c"}, g.TurnOrder)
}

func TestElectBusfahrerModes(t *testing.T) {
	players := []models.GamePlayer{
		{ID: "a", Cards: hand(card(2, models.SuitHearts), card(3, models.SuitHearts))},
		{ID: "b", Cards: hand(card(2, models.SuitSpades))},
		{ID: "c", Cards: hand(card(2, models.SuitClubs), card(3, models.SuitClubs))},
	}

	most := ElectBusfahrer(players, models.ModeDefault, testRng())
	sort.Strings(most)
	assert.Equal(t, []string{"a", "c"}, most)

	least := ElectBusfahrer(players, models.ModeReverse, testRng())
	assert.Equal(t, []string{"b"}, least)

	one := ElectBusfahrer(players, models.ModeRandom, testRng())
	assert.Len(t, one, 1)
}
