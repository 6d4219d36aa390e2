package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mohae/deepcopy"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.SnapshotStore and ports.EventLog in memory.
// Safe for concurrent use.
type Store struct {
	data   map[string]*domain.Snapshot
	events map[string][]*domain.Event
	mu     sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:   make(map[string]*domain.Snapshot),
		events: make(map[string][]*domain.Event),
	}
}

// Save persists a deep copy of the snapshot.
func (s *Store) Save(ctx context.Context, executionID string, snap *domain.Snapshot) error {
	copied := deepcopy.Copy(snap).(*domain.Snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[executionID] = copied
	return nil
}

// Load retrieves a copy of the snapshot so callers can't mutate the stored one.
func (s *Store) Load(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return deepcopy.Copy(snap).(*domain.Snapshot), nil
}

// Delete removes the snapshot and the event history.
func (s *Store) Delete(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, executionID)
	delete(s.events, executionID)
	return nil
}

// List returns stored execution IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendEvent records an event for the execution.
func (s *Store) AppendEvent(ctx context.Context, executionID string, event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[executionID] = append(s.events[executionID], event)
	return nil
}

// Events returns the recorded events in append order.
func (s *Store) Events(ctx context.Context, executionID string) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.Event(nil), s.events[executionID]...), nil
}
