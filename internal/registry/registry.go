// internal/registry/registry.go
package registry

import (
	"sync"
)

// Subscription scopes. Each inbound socket frame carries one of these as its
// type; cleanup keys its grace timers by (userId, scope).
const (
	ScopeAccount = "account"
	ScopeFriend  = "friend"
	ScopeLobbies = "lobbies"
	ScopeLobby   = "lobby"
	ScopeChat    = "chat"
	ScopeGame    = "game"
)

// Message is one outbound frame. Data is marshalled as-is.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const outboundBuffer = 64

// Conn is one live socket. Writes go through OutChan so each socket stays
// single-threaded with respect to its own outbound frames; the write pump
// drains the channel.
type Conn struct {
	UserID string
	// Scope and LobbyID are stamped on subscription so cleanup knows which
	// leave side effect to run.
	Scope   string
	LobbyID string

	OutChan chan Message

	mu      sync.Mutex
	isAlive bool
	closed  bool
}

// NewConn creates a connection annotated with the authenticated user.
func NewConn(userID string) *Conn {
	return &Conn{
		UserID:  userID,
		OutChan: make(chan Message, outboundBuffer),
		isAlive: true,
	}
}

// Send enqueues a frame without blocking. Frames to a stalled socket are
// dropped; the heartbeat will terminate it.
func (c *Conn) Send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.OutChan <- msg:
	default:
	}
}

// Close shuts the outbound queue. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.OutChan)
}

// MarkAlive records a pong.
func (c *Conn) MarkAlive() {
	c.mu.Lock()
	c.isAlive = true
	c.mu.Unlock()
}

// TickAlive flips the liveness flag for one heartbeat round and reports the
// value it had before the flip.
func (c *Conn) TickAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.isAlive
	c.isAlive = false
	return was
}

// Registry holds the six subscription maps. Subscription handlers and the
// cleanup scheduler are the only writers; broadcasters only read.
type Registry struct {
	mu sync.RWMutex

	user    map[string]map[*Conn]struct{}
	friends map[string]map[*Conn]struct{}
	lobbies map[*Conn]struct{}
	lobby   map[string]map[string]*Conn
	chat    map[string]map[*Conn]struct{}
	game    map[string]map[string]*Conn
}

func New() *Registry {
	return &Registry{
		user:    make(map[string]map[*Conn]struct{}),
		friends: make(map[string]map[*Conn]struct{}),
		lobbies: make(map[*Conn]struct{}),
		lobby:   make(map[string]map[string]*Conn),
		chat:    make(map[string]map[*Conn]struct{}),
		game:    make(map[string]map[string]*Conn),
	}
}

// Subscribe registers c under the given scope. For lobby, chat and game the
// id names the target document; the lobby and game maps are keyed by user so
// per-user frames can be addressed.
func (r *Registry) Subscribe(c *Conn, scope, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.Scope = scope
	switch scope {
	case ScopeAccount:
		if r.user[c.UserID] == nil {
			r.user[c.UserID] = make(map[*Conn]struct{})
		}
		r.user[c.UserID][c] = struct{}{}
	case ScopeFriend:
		if r.friends[c.UserID] == nil {
			r.friends[c.UserID] = make(map[*Conn]struct{})
		}
		r.friends[c.UserID][c] = struct{}{}
	case ScopeLobbies:
		r.lobbies[c] = struct{}{}
	case ScopeLobby:
		c.LobbyID = id
		if r.lobby[id] == nil {
			r.lobby[id] = make(map[string]*Conn)
		}
		r.lobby[id][c.UserID] = c
	case ScopeChat:
		c.LobbyID = id
		if r.chat[id] == nil {
			r.chat[id] = make(map[*Conn]struct{})
		}
		r.chat[id][c] = struct{}{}
	case ScopeGame:
		c.LobbyID = id
		if r.game[id] == nil {
			r.game[id] = make(map[string]*Conn)
		}
		r.game[id][c.UserID] = c
	}
}

// Remove takes c out of every map that holds it.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.user[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.user, c.UserID)
		}
	}
	if set, ok := r.friends[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.friends, c.UserID)
		}
	}
	delete(r.lobbies, c)
	for id, m := range r.lobby {
		if m[c.UserID] == c {
			delete(m, c.UserID)
			if len(m) == 0 {
				delete(r.lobby, id)
			}
		}
	}
	for id, set := range r.chat {
		delete(set, c)
		if len(set) == 0 {
			delete(r.chat, id)
		}
	}
	for id, m := range r.game {
		if m[c.UserID] == c {
			delete(m, c.UserID)
			if len(m) == 0 {
				delete(r.game, id)
			}
		}
	}
}

// SendToUser pushes a frame to every account socket of userID.
func (r *Registry) SendToUser(userID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.user[userID] {
		c.Send(msg)
	}
}

// SendToFriendSockets pushes a frame to every friend-scope socket of userID.
func (r *Registry) SendToFriendSockets(userID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.friends[userID] {
		c.Send(msg)
	}
}

// BroadcastLobbies pushes a frame to every subscriber of the public list.
func (r *Registry) BroadcastLobbies(msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.lobbies {
		c.Send(msg)
	}
}

// BroadcastLobby pushes a frame to every socket in the lobby scope.
func (r *Registry) BroadcastLobby(lobbyID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.lobby[lobbyID] {
		c.Send(msg)
	}
}

// SendToLobbyUser addresses one user's lobby socket.
func (r *Registry) SendToLobbyUser(lobbyID, userID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.lobby[lobbyID][userID]; ok {
		c.Send(msg)
	}
}

// BroadcastChat pushes a frame to every chat subscriber of the lobby.
func (r *Registry) BroadcastChat(chatID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.chat[chatID] {
		c.Send(msg)
	}
}

// BroadcastGame pushes a frame to every socket in the game scope.
func (r *Registry) BroadcastGame(gameID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.game[gameID] {
		c.Send(msg)
	}
}

// SendToGameUser addresses one user's game socket.
func (r *Registry) SendToGameUser(gameID, userID string, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.game[gameID][userID]; ok {
		c.Send(msg)
	}
}

// GameSubscribers returns the user ids currently subscribed to a game.
// Per-user frames iterate this snapshot.
func (r *Registry) GameSubscribers(gameID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.game[gameID]))
	for id := range r.game[gameID] {
		out = append(out, id)
	}
	return out
}

// AllConns snapshots every registered socket, for the heartbeat sweep.
func (r *Registry) AllConns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Conn]struct{})
	add := func(c *Conn) { seen[c] = struct{}{} }
	for _, set := range r.user {
		for c := range set {
			add(c)
		}
	}
	for _, set := range r.friends {
		for c := range set {
			add(c)
		}
	}
	for c := range r.lobbies {
		add(c)
	}
	for _, m := range r.lobby {
		for _, c := range m {
			add(c)
		}
	}
	for _, set := range r.chat {
		for c := range set {
			add(c)
		}
	}
	for _, m := range r.game {
		for _, c := range m {
			add(c)
		}
	}
	out := make([]*Conn, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	return out
}
