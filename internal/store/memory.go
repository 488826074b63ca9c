// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"
)

// watchBuffer bounds each subscriber channel. Events are published under the
// store lock so a collection's subscribers see mutations in emission order;
// a subscriber that stops draining sheds its oldest events instead of
// blocking writers.
const watchBuffer = 256

// MemoryStore is the in-process Store implementation. One mutex guards all
// collections; every mutation is applied and published atomically, which
// gives the linearisation the dispatcher relies on.
type MemoryStore struct {
	mu       sync.RWMutex
	cols     map[string]map[string]map[string]any
	watchers map[string][]chan Event
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cols:     make(map[string]map[string]map[string]any),
		watchers: make(map[string][]chan Event),
	}
}

// Read returns a deep copy of the document.
func (s *MemoryStore) Read(ctx context.Context, collection, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

// ReadAll returns deep copies of every document in the collection.
func (s *MemoryStore) ReadAll(ctx context.Context, collection string) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.cols[collection]))
	for id, doc := range s.cols[collection] {
		out[id] = copyDoc(doc)
	}
	return out, nil
}

// Insert stores a new document and emits an insert event.
func (s *MemoryStore) Insert(ctx context.Context, collection, id string, doc any) error {
	tree, err := Encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cols[collection] == nil {
		s.cols[collection] = make(map[string]map[string]any)
	}
	if _, exists := s.cols[collection][id]; exists {
		return fmt.Errorf("insert %s/%s: document already exists", collection, id)
	}
	s.cols[collection][id] = tree
	s.publish(collection, Event{ID: id, OpType: OpInsert})
	return nil
}

// Update applies a patch atomically and emits an update event carrying the
// touched field paths.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch *Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.cols[collection][id]
	if !ok {
		return ErrNotFound
	}

	if err := applyPatch(doc, patch); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.publish(collection, Event{ID: id, OpType: OpUpdate, UpdatedFields: patch.Paths()})
	return nil
}

// Delete removes the document and emits a delete event. Deleting a missing
// document is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cols[collection][id]; !ok {
		return nil
	}
	delete(s.cols[collection], id)
	s.publish(collection, Event{ID: id, OpType: OpDelete})
	return nil
}

// Watch subscribes to the collection's change feed. The channel is never
// closed; it lives for the process lifetime.
func (s *MemoryStore) Watch(collection string) <-chan Event {
	ch := make(chan Event, watchBuffer)
	s.mu.Lock()
	s.watchers[collection] = append(s.watchers[collection], ch)
	s.mu.Unlock()
	return ch
}

// publish delivers an event to every subscriber. Called with the lock held
// so feed order equals mutation order. Publishing never blocks: a subscriber
// that falls watchBuffer events behind loses its oldest event, it must not
// stall every writer of the store.
func (s *MemoryStore) publish(collection string, ev Event) {
	for _, ch := range s.watchers[collection] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// applyPatch mutates the document tree in place. Operator order is fixed:
// Set, Inc, Max, Min, Push, Pull.
func applyPatch(doc map[string]any, patch *Patch) error {
	for path, v := range patch.Set {
		norm, err := normalize(v)
		if err != nil {
			return err
		}
		if err := setPath(doc, path, norm); err != nil {
			return err
		}
	}
	for path, delta := range patch.Inc {
		cur, _, err := numberAt(doc, path)
		if err != nil {
			return err
		}
		if err := setPath(doc, path, cur+float64(delta)); err != nil {
			return err
		}
	}
	for path, v := range patch.Max {
		cur, exists, err := numberAt(doc, path)
		if err != nil {
			return err
		}
		if !exists || float64(v) > cur {
			if err := setPath(doc, path, float64(v)); err != nil {
				return err
			}
		}
	}
	for path, v := range patch.Min {
		cur, exists, err := numberAt(doc, path)
		if err != nil {
			return err
		}
		if !exists || float64(v) < cur {
			if err := setPath(doc, path, float64(v)); err != nil {
				return err
			}
		}
	}
	for path, v := range patch.Push {
		arr, err := arrayAt(doc, path)
		if err != nil {
			return err
		}
		norm, err := normalize(v)
		if err != nil {
			return err
		}
		if err := setPath(doc, path, append(arr, norm)); err != nil {
			return err
		}
	}
	for path, predicate := range patch.Pull {
		arr, err := arrayAt(doc, path)
		if err != nil {
			return err
		}
		norm, err := normalize(predicate)
		if err != nil {
			return err
		}
		kept := make([]any, 0, len(arr))
		for _, elem := range arr {
			if !matchesPull(elem, norm) {
				kept = append(kept, elem)
			}
		}
		if err := setPath(doc, path, kept); err != nil {
			return err
		}
	}
	return nil
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch node := v.(type) {
	case map[string]any:
		return copyDoc(node)
	case []any:
		out := make([]any, len(node))
		for i, e := range node {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
