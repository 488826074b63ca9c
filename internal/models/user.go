// internal/models/user.go
package models

import "time"

// User is the identity row persisted in Postgres. Display state lives in the
// "users" document collection (Profile) so it can flow through the change feed.
type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Password string    `json:"-"`
	Created  time.Time `json:"created"`
}

// Statistic keys. Max-type keys are written through the store's monotonic
// max gate.
const (
	StatGamesPlayed    = "gamesPlayed"
	StatGamesWon       = "gamesWon"
	StatGamesBus       = "gamesBus"
	StatDrinksGiven    = "drinksGiven"
	StatDrinksSelf     = "drinksSelf"
	StatNumberEx       = "numberEx"
	StatLayedCards     = "layedCards"
	StatMaxDrinksGiven = "maxDrinksGiven"
	StatMaxDrinksSelf  = "maxDrinksSelf"
	StatMaxCardsSelf   = "maxCardsSelf"
)

// StatisticKeys is the closed set of statistic names.
var StatisticKeys = []string{
	StatGamesPlayed, StatGamesWon, StatGamesBus,
	StatDrinksGiven, StatDrinksSelf, StatNumberEx, StatLayedCards,
	StatMaxDrinksGiven, StatMaxDrinksSelf, StatMaxCardsSelf,
}

// Title is an unlocked display title. Exactly one title is active per user.
type Title struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Active bool   `json:"active"`
}

// CardTheme is the chosen card back.
type CardTheme struct {
	Theme  string `json:"theme"`
	Color1 string `json:"color1"`
	Color2 string `json:"color2"`
}

// Profile is the display document stored in the "users" collection.
type Profile struct {
	Username       string         `json:"username"`
	Avatar         string         `json:"avatar"`
	UploadedAvatar string         `json:"uploadedAvatar"`
	CardTheme      CardTheme      `json:"cardTheme"`
	Title          string         `json:"title"`
	Titles         []Title        `json:"titles"`
	Achievements   []string       `json:"achievements"`
	Statistics     map[string]int `json:"statistics"`
}

// NewProfile seeds the document created at registration.
func NewProfile(username string) Profile {
	stats := make(map[string]int, len(StatisticKeys))
	for _, k := range StatisticKeys {
		stats[k] = 0
	}
	return Profile{
		Username:   username,
		Avatar:     "default.svg",
		CardTheme:  CardTheme{Theme: "default", Color1: "#ffffff", Color2: "#ff0000"},
		Title:      "Rookie",
		Titles:     []Title{{Name: "Rookie", Color: "#ffffff", Active: true}},
		Statistics: stats,
	}
}

// Achievement is a threshold on a statistic that unlocks a title.
type Achievement struct {
	Name      string `json:"name"`
	StatKey   string `json:"statKey"`
	Threshold int    `json:"threshold"`
	Title     string `json:"title"`
	Color     string `json:"color"`
}

// FriendRef identifies a user on a request or block list.
type FriendRef struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// FriendMessage is one direction of a 1:1 conversation. Sender is either
// "You" (own copy) or the counterpart's username (their copy).
type FriendMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FriendEntry is an established friendship with its message history.
type FriendEntry struct {
	UserID      string          `json:"userId"`
	Username    string          `json:"username"`
	Avatar      string          `json:"avatar"`
	Messages    []FriendMessage `json:"messages"`
	UnreadCount int             `json:"unreadCount"`
}

// Invitation is a pending lobby invite.
type Invitation struct {
	LobbyID string `json:"lobbyId"`
	Player  string `json:"player"`
}

// FriendDoc is the per-user document in the "friends" collection.
type FriendDoc struct {
	FriendCode      string        `json:"friendCode"`
	Friends         []FriendEntry `json:"friends"`
	SentRequests    []FriendRef   `json:"sentRequests"`
	PendingRequests []FriendRef   `json:"pendingRequests"`
	BlockedUsers    []FriendRef   `json:"blockedUsers"`
	Invitations     []Invitation  `json:"invitations"`
}

// FindFriend returns the entry for userID, or nil.
func (f *FriendDoc) FindFriend(userID string) *FriendEntry {
	for i := range f.Friends {
		if f.Friends[i].UserID == userID {
			return &f.Friends[i]
		}
	}
	return nil
}

// HasPending reports whether userID has an open request toward this doc's owner.
func (f *FriendDoc) HasPending(userID string) bool {
	for _, r := range f.PendingRequests {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// HasSent reports whether this doc's owner already requested userID.
func (f *FriendDoc) HasSent(userID string) bool {
	for _, r := range f.SentRequests {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
