// internal/ws/cleanup.go
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
)

// GracePeriod is how long a closed socket may stay gone before its side
// effects fire. A reconnect of the same (user, scope) within the grace
// cancels the pending cleanup.
const GracePeriod = 15 * time.Second

type cleanupKey struct {
	userID string
	scope  string
}

// Cleanup schedules the grace-period removal of abandoned sockets. The leave
// hooks are injected by the services so this package stays free of a
// dependency on them.
type Cleanup struct {
	mu     sync.Mutex
	timers map[cleanupKey]*time.Timer

	reg   *registry.Registry
	grace time.Duration
	log   *logrus.Logger

	leaveLobby func(ctx context.Context, userID, lobbyID string)
	leaveGame  func(ctx context.Context, gameID, userID string)
}

// NewCleanup creates a scheduler over the given registry.
func NewCleanup(reg *registry.Registry, grace time.Duration, log *logrus.Logger) *Cleanup {
	if grace <= 0 {
		grace = GracePeriod
	}
	return &Cleanup{
		timers: make(map[cleanupKey]*time.Timer),
		reg:    reg,
		grace:  grace,
		log:    log,
	}
}

// SetLeaveHooks wires the lobby/game leave side effects. Must be called
// before any timer can fire.
func (cl *Cleanup) SetLeaveHooks(
	leaveLobby func(ctx context.Context, userID, lobbyID string),
	leaveGame func(ctx context.Context, gameID, userID string),
) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.leaveLobby = leaveLobby
	cl.leaveGame = leaveGame
}

// Schedule arms a grace timer for the closed socket, keyed by
// (userId, scope). An existing timer for the same key is replaced.
func (cl *Cleanup) Schedule(c *registry.Conn) {
	key := cleanupKey{userID: c.UserID, scope: c.Scope}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if old, ok := cl.timers[key]; ok {
		old.Stop()
	}
	cl.timers[key] = time.AfterFunc(cl.grace, func() {
		cl.fire(key, c)
	})
}

// Cancel stops a pending cleanup for (userId, scope). Called when the same
// identity resubscribes; reports whether a timer was pending.
func (cl *Cleanup) Cancel(userID, scope string) bool {
	key := cleanupKey{userID: userID, scope: scope}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	t, ok := cl.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(cl.timers, key)
	return true
}

func (cl *Cleanup) fire(key cleanupKey, c *registry.Conn) {
	cl.mu.Lock()
	if cl.timers[key] == nil {
		cl.mu.Unlock()
		return
	}
	delete(cl.timers, key)
	leaveLobby := cl.leaveLobby
	leaveGame := cl.leaveGame
	cl.mu.Unlock()

	cl.reg.Remove(c)

	ctx := context.Background()
	switch {
	case c.Scope == registry.ScopeLobby && c.LobbyID != "":
		if leaveLobby != nil {
			cl.log.WithFields(logrus.Fields{"userId": c.UserID, "lobbyId": c.LobbyID}).
				Info("cleanup: leaving lobby after grace period")
			leaveLobby(ctx, c.UserID, c.LobbyID)
		}
	case c.Scope == registry.ScopeGame && c.LobbyID != "":
		if leaveGame != nil {
			cl.log.WithFields(logrus.Fields{"userId": c.UserID, "gameId": c.LobbyID}).
				Info("cleanup: leaving game after grace period")
			leaveGame(ctx, c.LobbyID, c.UserID)
		}
	}
}
