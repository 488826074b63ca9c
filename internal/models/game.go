// internal/models/game.go
package models

// Game status values. PHASE1 through PHASE3 mirror the three stages of the
// ride; FINISHED is set once the busfahrer clears the final row.
const (
	StatusPhase1   = "PHASE1"
	StatusPhase2   = "PHASE2"
	StatusPhase3   = "PHASE3"
	StatusFinished = "FINISHED"
)

// TurnInfo carries the per-player, per-turn state.
type TurnInfo struct {
	HadTurn bool `json:"hadTurn"`
	// DrinksPerPlayer is the number of drinks the active player has assigned
	// to this player in the current round (Avatar giving mode).
	DrinksPerPlayer int `json:"drinksPerPlayer"`
	// DrinksReceived accumulates everything this player has to drink.
	DrinksReceived int `json:"drinksReceived"`
}

// GamePlayer is one participant of a running game.
type GamePlayer struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Role     string       `json:"role"`
	Gender   string       `json:"gender"`
	Avatar   string       `json:"avatar"`
	Title    string       `json:"title"`
	Cards    []PlayerCard `json:"cards"`
	TurnInfo TurnInfo     `json:"turnInfo"`
}

// UnplayedCount counts the cards still in the player's active set.
func (p *GamePlayer) UnplayedCount() int {
	n := 0
	for _, c := range p.Cards {
		if !c.Played {
			n++
		}
	}
	return n
}

// DrinksPerType accumulates phase 2 round 2 face-card drinks.
type DrinksPerType struct {
	Jack  int `json:"JACK"`
	Queen int `json:"QUEEN"`
	King  int `json:"KING"`
}

// GameInfo is the phase-dependent scratch state of a game. Phase 1 uses
// RoundNr/DrinksPerRound/IsRowFlipped, phase 2 adds DrinksPerType and
// HasToDown, phase 3 uses Busfahrer/CurrentRow/LastCard/DrinksPerTry and the
// TryOver/GameOver flags.
type GameInfo struct {
	RoundNr          int            `json:"roundNr"`
	DrinksPerRound   int            `json:"drinksPerRound"`
	IsRowFlipped     bool           `json:"isRowFlipped"`
	NextPhaseEnabled bool           `json:"nextPhaseEnabled"`
	DrinksPerType    DrinksPerType  `json:"drinksPerType"`
	HasToDown        map[string]int `json:"hasToDown"`
	Busfahrer        []string       `json:"busfahrer"`
	CurrentRow       int            `json:"currentRow"`
	LastCard         *Card          `json:"lastCard"`
	DrinksPerTry     int            `json:"drinksPerTry"`
	TryOver          bool           `json:"tryOver"`
	GameOver         bool           `json:"gameOver"`
}

// Game is the authoritative document of a running game. It shares its id
// with the lobby that spawned it.
type Game struct {
	Status       string        `json:"status"`
	Players      []GamePlayer  `json:"players"`
	Spectators   []LobbyPlayer `json:"spectators"`
	Cards        [][]LaidCard  `json:"cards"`
	Deck         []Card        `json:"deck"`
	ActivePlayer string        `json:"activePlayer"`
	TurnOrder    []string      `json:"turnOrder"`
	GameInfo     GameInfo      `json:"gameInfo"`
	Settings     GameSettings  `json:"settings"`
}

// FindPlayer returns the index of userID in Players, or -1.
func (g *Game) FindPlayer(userID string) int {
	for i := range g.Players {
		if g.Players[i].ID == userID {
			return i
		}
	}
	return -1
}

// Master returns the index of the game master, or -1.
func (g *Game) Master() int {
	for i := range g.Players {
		if g.Players[i].Role == RoleMaster {
			return i
		}
	}
	return -1
}

// IsBusfahrer reports whether userID is one of the elected drivers.
func (g *Game) IsBusfahrer(userID string) bool {
	for _, id := range g.GameInfo.Busfahrer {
		if id == userID {
			return true
		}
	}
	return false
}

// IsParticipant reports whether userID is a player or spectator.
func (g *Game) IsParticipant(userID string) bool {
	if g.FindPlayer(userID) >= 0 {
		return true
	}
	for _, s := range g.Spectators {
		if s.ID == userID {
			return true
		}
	}
	return false
}
