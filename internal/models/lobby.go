// internal/models/lobby.go
package models

import "time"

// Lobby status values.
const (
	LobbyWaiting = "WAITING"
	LobbyFull    = "FULL"
	LobbyStarted = "STARTED"
)

// Player roles within a lobby or game.
const (
	RoleMaster    = "MASTER"
	RolePlayer    = "PLAYER"
	RoleSpectator = "SPECTATOR"
)

// Gender values used for the phase 2 drink math.
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

// Matching styles for laying cards against a row.
const (
	MatchExact  = "Exact"
	MatchType   = "Type"
	MatchNumber = "Number"
)

// Shuffling algorithms.
const (
	ShuffleFisherYates = "Fisher-Yates"
	ShuffleCaotic      = "Caotic"
	ShuffleRiffle      = "Riffle"
)

// Turn ordering / busfahrer election modes.
const (
	ModeDefault = "Default"
	ModeReverse = "Reverse"
	ModeRandom  = "Random"
)

// Giving policies for phase 1 drinks.
const (
	GivingDefault = "Default"
	GivingAvatar  = "Avatar"
)

// GameSettings are chosen by the lobby master at creation time and travel
// unchanged into the game document.
type GameSettings struct {
	PlayerLimit int    `json:"playerLimit"`
	Matching    string `json:"matching"`
	Shuffling   string `json:"shuffling"`
	Giving      string `json:"giving"`
	Turning     string `json:"turning"`
	BusMode     string `json:"busMode"`
	CanInherit  bool   `json:"canInherit"`
	IsChaos     bool   `json:"isChaos"`
}

// DefaultSettings fills in the zero values a client may omit.
func DefaultSettings() GameSettings {
	return GameSettings{
		PlayerLimit: 10,
		Matching:    MatchNumber,
		Shuffling:   ShuffleFisherYates,
		Giving:      GivingDefault,
		Turning:     ModeDefault,
		BusMode:     ModeDefault,
	}
}

// LobbyPlayer is one seat in a lobby (player or spectator).
type LobbyPlayer struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	Gender   string    `json:"gender"`
	Avatar   string    `json:"avatar"`
	Title    string    `json:"title"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Lobby is the waiting-room document. Games and chats reuse the lobby id.
type Lobby struct {
	Name       string        `json:"name"`
	LobbyCode  string        `json:"lobbyCode"`
	Status     string        `json:"status"`
	Private    bool          `json:"private"`
	Players    []LobbyPlayer `json:"players"`
	Spectators []LobbyPlayer `json:"spectators"`
	IsJoining  []string      `json:"isJoining"`
	Settings   GameSettings  `json:"settings"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Master returns the current master seat, or nil.
func (l *Lobby) Master() *LobbyPlayer {
	for i := range l.Players {
		if l.Players[i].Role == RoleMaster {
			return &l.Players[i]
		}
	}
	return nil
}

// FindPlayer returns the seat for userID among players, or nil.
func (l *Lobby) FindPlayer(userID string) *LobbyPlayer {
	for i := range l.Players {
		if l.Players[i].ID == userID {
			return &l.Players[i]
		}
	}
	return nil
}

// FindSpectator returns the seat for userID among spectators, or nil.
func (l *Lobby) FindSpectator(userID string) *LobbyPlayer {
	for i := range l.Spectators {
		if l.Spectators[i].ID == userID {
			return &l.Spectators[i]
		}
	}
	return nil
}

// IsJoiningUser reports whether userID holds a reserved joining slot.
func (l *Lobby) IsJoiningUser(userID string) bool {
	for _, id := range l.IsJoining {
		if id == userID {
			return true
		}
	}
	return false
}

// Chat is the per-lobby message log. It shares the lobby's id and lifecycle.
type Chat struct {
	Name     string        `json:"name"`
	ChatCode string        `json:"chatCode"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is a single chat entry.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
