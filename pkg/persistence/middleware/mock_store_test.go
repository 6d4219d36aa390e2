package middleware_test

import (
	"context"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[string]*domain.Snapshot
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Snapshot),
	}
}

func (s *MockStore) Save(ctx context.Context, executionID string, snap *domain.Snapshot) error {
	s.data[executionID] = snap
	return nil
}

func (s *MockStore) Load(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	snap, ok := s.data[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return snap, nil
}

func (s *MockStore) Delete(ctx context.Context, executionID string) error {
	delete(s.data, executionID)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ ports.SnapshotStore = (*MockStore)(nil)
