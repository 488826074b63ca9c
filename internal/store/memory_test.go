// internal/store/memory_test.go
package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*MemoryStore, context.Context) {
	t.Helper()
	return NewMemoryStore(), context.Background()
}

func TestInsertReadDelete(t *testing.T) {
	s, ctx := newTestStore(t)

	require.NoError(t, s.Insert(ctx, "lobbies", "l1", map[string]any{"name": "Test", "players": []any{}}))

	doc, err := s.Read(ctx, "lobbies", "l1")
	require.NoError(t, err)
	assert.Equal(t, "Test", doc["name"])

	// Reads are copies; mutating them must not leak into the store.
	doc["name"] = "mutated"
	doc2, err := s.Read(ctx, "lobbies", "l1")
	require.NoError(t, err)
	assert.Equal(t, "Test", doc2["name"])

	require.NoError(t, s.Delete(ctx, "lobbies", "l1"))
	_, err = s.Read(ctx, "lobbies", "l1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSetAndInc(t *testing.T) {
	s, ctx := newTestStore(t)
	require.NoError(t, s.Insert(ctx, "games", "g1", map[string]any{
		"gameInfo": map[string]any{"roundNr": 1, "drinksPerRound": 0},
		"players": []any{
			map[string]any{"id": "a", "turnInfo": map[string]any{"hadTurn": false}},
		},
	}))

	err := s.Update(ctx, "games", "g1", &Patch{
		Set: map[string]any{"players.0.turnInfo.hadTurn": true},
		Inc: map[string]int{"gameInfo.drinksPerRound": 3},
	})
	require.NoError(t, err)

	doc, err := s.Read(ctx, "games", "g1")
	require.NoError(t, err)
	v, ok := getPath(doc, "players.0.turnInfo.hadTurn")
	require.True(t, ok)
	assert.Equal(t, true, v)
	n, ok := getPath(doc, "gameInfo.drinksPerRound")
	require.True(t, ok)
	assert.Equal(t, float64(3), n)
}

func TestUpdateMaxMinAreMonotonic(t *testing.T) {
	s, ctx := newTestStore(t)
	require.NoError(t, s.Insert(ctx, "users", "u1", map[string]any{
		"statistics": map[string]any{"maxDrinksGiven": 5, "minSomething": 5},
	}))

	// Lower max and higher min must be ignored.
	require.NoError(t, s.Update(ctx, "users", "u1", &Patch{
		Max: map[string]int{"statistics.maxDrinksGiven": 3},
		Min: map[string]int{"statistics.minSomething": 9},
	}))
	doc, _ := s.Read(ctx, "users", "u1")
	v, _ := getPath(doc, "statistics.maxDrinksGiven")
	assert.Equal(t, float64(5), v)
	v, _ = getPath(doc, "statistics.minSomething")
	assert.Equal(t, float64(5), v)

	// Strictly greater / lesser values pass the gate.
	require.NoError(t, s.Update(ctx, "users", "u1", &Patch{
		Max: map[string]int{"statistics.maxDrinksGiven": 8},
		Min: map[string]int{"statistics.minSomething": 2},
	}))
	doc, _ = s.Read(ctx, "users", "u1")
	v, _ = getPath(doc, "statistics.maxDrinksGiven")
	assert.Equal(t, float64(8), v)
	v, _ = getPath(doc, "statistics.minSomething")
	assert.Equal(t, float64(2), v)
}

func TestUpdatePushPull(t *testing.T) {
	s, ctx := newTestStore(t)
	require.NoError(t, s.Insert(ctx, "lobbies", "l1", map[string]any{
		"isJoining": []any{"u1", "u2"},
		"players":   []any{},
	}))

	require.NoError(t, s.Update(ctx, "lobbies", "l1", &Patch{
		Push: map[string]any{"players": map[string]any{"id": "u1", "name": "Anna"}},
		Pull: map[string]any{"isJoining": "u1"},
	}))

	doc, _ := s.Read(ctx, "lobbies", "l1")
	joining, err := arrayAt(doc, "isJoining")
	require.NoError(t, err)
	assert.Equal(t, []any{"u2"}, joining)

	players, err := arrayAt(doc, "players")
	require.NoError(t, err)
	require.Len(t, players, 1)

	// Pull by subdocument predicate.
	require.NoError(t, s.Update(ctx, "lobbies", "l1", &Patch{
		Pull: map[string]any{"players": map[string]any{"id": "u1"}},
	}))
	doc, _ = s.Read(ctx, "lobbies", "l1")
	players, err = arrayAt(doc, "players")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestWatchEmitsOrderedEvents(t *testing.T) {
	s, ctx := newTestStore(t)
	feed := s.Watch("games")

	require.NoError(t, s.Insert(ctx, "games", "g1", map[string]any{"gameInfo": map[string]any{"roundNr": 1}}))
	require.NoError(t, s.Update(ctx, "games", "g1", &Patch{Inc: map[string]int{"gameInfo.roundNr": 1}}))
	require.NoError(t, s.Delete(ctx, "games", "g1"))

	ev := <-feed
	assert.Equal(t, OpInsert, ev.OpType)
	assert.Equal(t, "g1", ev.ID)

	ev = <-feed
	assert.Equal(t, OpUpdate, ev.OpType)
	assert.Equal(t, []string{"gameInfo.roundNr"}, ev.UpdatedFields)

	ev = <-feed
	assert.Equal(t, OpDelete, ev.OpType)
}

func TestSlowWatcherDropsOldestWithoutBlocking(t *testing.T) {
	s, ctx := newTestStore(t)
	feed := s.Watch("games")
	require.NoError(t, s.Insert(ctx, "games", "g1", map[string]any{"n": 0}))

	// Nobody drains the feed; writers must still make progress.
	total := watchBuffer * 2
	for i := 0; i < total; i++ {
		require.NoError(t, s.Update(ctx, "games", "g1", &Patch{Inc: map[string]int{"n": 1}}))
	}

	// The buffer holds the newest events, the oldest were shed.
	var last Event
	drained := 0
	for len(feed) > 0 {
		last = <-feed
		drained++
	}
	assert.LessOrEqual(t, drained, watchBuffer)
	assert.Equal(t, OpUpdate, last.OpType)

	// The feed still works once the subscriber catches up.
	require.NoError(t, s.Delete(ctx, "games", "g1"))
	ev := <-feed
	assert.Equal(t, OpDelete, ev.OpType)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type inner struct {
		N int    `json:"n"`
		S string `json:"s"`
	}
	doc, err := Encode(inner{N: 7, S: "x"})
	require.NoError(t, err)
	assert.Equal(t, float64(7), doc["n"])

	var out inner
	require.NoError(t, Decode(doc, &out))
	assert.Equal(t, inner{N: 7, S: "x"}, out)
}
