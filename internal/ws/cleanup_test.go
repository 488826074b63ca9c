// internal/ws/cleanup_test.go
package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
)

type leaveRecorder struct {
	mu     sync.Mutex
	lobby  []string
	game   []string
	signal chan struct{}
}

func newLeaveRecorder() *leaveRecorder {
	return &leaveRecorder{signal: make(chan struct{}, 4)}
}

func (lr *leaveRecorder) leaveLobby(_ context.Context, userID, lobbyID string) {
	lr.mu.Lock()
	lr.lobby = append(lr.lobby, userID+":"+lobbyID)
	lr.mu.Unlock()
	lr.signal <- struct{}{}
}

func (lr *leaveRecorder) leaveGame(_ context.Context, gameID, userID string) {
	lr.mu.Lock()
	lr.game = append(lr.game, userID+":"+gameID)
	lr.mu.Unlock()
	lr.signal <- struct{}{}
}

func (lr *leaveRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-lr.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup side effect never fired")
	}
}

func newTestCleanup(t *testing.T) (*Cleanup, *registry.Registry, *leaveRecorder) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	reg := registry.New()
	cl := NewCleanup(reg, 20*time.Millisecond, log)
	lr := newLeaveRecorder()
	cl.SetLeaveHooks(lr.leaveLobby, lr.leaveGame)
	return cl, reg, lr
}

func TestCleanupFiresLobbyLeave(t *testing.T) {
	cl, reg, lr := newTestCleanup(t)

	c := registry.NewConn("u1")
	reg.Subscribe(c, registry.ScopeLobby, "l1")
	cl.Schedule(c)

	lr.wait(t)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	assert.Equal(t, []string{"u1:l1"}, lr.lobby)
	assert.Empty(t, reg.AllConns())
}

func TestCleanupFiresGameLeave(t *testing.T) {
	cl, reg, lr := newTestCleanup(t)

	c := registry.NewConn("u1")
	reg.Subscribe(c, registry.ScopeGame, "g1")
	cl.Schedule(c)

	lr.wait(t)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	assert.Equal(t, []string{"u1:g1"}, lr.game)
}

func TestCancelBeforeGraceSkipsSideEffects(t *testing.T) {
	cl, reg, lr := newTestCleanup(t)

	c := registry.NewConn("u1")
	reg.Subscribe(c, registry.ScopeLobby, "l1")
	cl.Schedule(c)

	require.True(t, cl.Cancel("u1", registry.ScopeLobby))

	time.Sleep(80 * time.Millisecond)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	assert.Empty(t, lr.lobby)
	// The socket stays registered across the graceful reconnect window.
	assert.Len(t, reg.AllConns(), 1)
}

func TestCancelWithoutPendingTimer(t *testing.T) {
	cl, _, _ := newTestCleanup(t)
	assert.False(t, cl.Cancel("nobody", registry.ScopeGame))
}

func TestAccountScopeHasNoSideEffects(t *testing.T) {
	cl, reg, lr := newTestCleanup(t)

	c := registry.NewConn("u1")
	reg.Subscribe(c, registry.ScopeAccount, "")
	cl.Schedule(c)

	time.Sleep(80 * time.Millisecond)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	assert.Empty(t, lr.lobby)
	assert.Empty(t, lr.game)
	assert.Empty(t, reg.AllConns())
}
