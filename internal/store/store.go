// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names. Games and chats reuse the lobby id, so the three share
// a lifecycle.
const (
	ColUsers        = "users"
	ColFriends      = "friends"
	ColLobbies      = "lobbies"
	ColChats        = "chats"
	ColGames        = "games"
	ColAchievements = "achievements"
)

// Op types carried on change events.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is one entry of a collection's change feed. UpdatedFields holds the
// dotted paths touched by the mutation; the fan-out dispatcher classifies
// them against its routing table.
type Event struct {
	ID            string
	OpType        string
	UpdatedFields []string
}

// Patch is a structured partial update over dotted field paths. Operators
// are applied atomically in the order Set, Inc, Max, Min, Push, Pull.
//
// Max and Min are monotonic numeric gates: the value is only written when it
// is strictly greater (resp. lesser) than the stored one. Pull removes every
// array element matching the given predicate; a map predicate matches
// subdocument fields, any other value is compared for equality.
type Patch struct {
	Set  map[string]any
	Inc  map[string]int
	Max  map[string]int
	Min  map[string]int
	Push map[string]any
	Pull map[string]any
}

// Paths returns the union of all field paths the patch touches.
func (p *Patch) Paths() []string {
	var out []string
	for k := range p.Set {
		out = append(out, k)
	}
	for k := range p.Inc {
		out = append(out, k)
	}
	for k := range p.Max {
		out = append(out, k)
	}
	for k := range p.Min {
		out = append(out, k)
	}
	for k := range p.Push {
		out = append(out, k)
	}
	for k := range p.Pull {
		out = append(out, k)
	}
	return out
}

// Store is the abstract document store. Documents are JSON-shaped trees;
// every mutation is atomic with respect to concurrent readers and is
// published, in order, on the collection's change feed.
type Store interface {
	Read(ctx context.Context, collection, id string) (map[string]any, error)
	ReadAll(ctx context.Context, collection string) (map[string]map[string]any, error)
	Insert(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, patch *Patch) error
	Delete(ctx context.Context, collection, id string) error
	Watch(collection string) <-chan Event
}

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = fmt.Errorf("document not found")

// Encode converts a typed value into a plain JSON-shaped document tree.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a document tree back into a typed value.
func Decode(doc map[string]any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// normalize converts any value into plain JSON types (map[string]any,
// []any, float64, string, bool, nil) so documents stay uniform.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}
