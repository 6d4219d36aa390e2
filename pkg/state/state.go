package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/aretw0/arbor/pkg/domain"
)

// ErrReadOnly is returned when a write targets the trigger namespace.
var ErrReadOnly = errors.New("trigger attributes are read-only")

// Meta identifies the run a state belongs to.
type Meta struct {
	ExecutionID string
	Workflow    string
	TraceID     string
	SpanID      string
	Parent      *domain.ParentContext
}

// lineage hands out fork ordinals to a state and all of its forks.
type lineage struct {
	next atomic.Uint64
}

// State is the mutable run state of one workflow execution (or one fork of it).
type State struct {
	mu      sync.RWMutex
	values  map[domain.Key]any
	written map[domain.Key]struct{}
	cache   *Cache
	meta    Meta
	pending []domain.Key
	status  domain.RunStatus

	version uint64
	history []*domain.Snapshot

	ordinal uint64
	lineage *lineage
}

// New creates an empty state with the given metadata.
func New(meta Meta) *State {
	return &State{
		values:  make(map[domain.Key]any),
		written: make(map[domain.Key]struct{}),
		cache:   newCache(),
		meta:    meta,
		lineage: &lineage{},
	}
}

// FromSnapshot rehydrates a state from a snapshot. The snapshot becomes the
// first entry of the history.
func FromSnapshot(snap *domain.Snapshot) (*State, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	s := New(Meta{
		ExecutionID: snap.ExecutionID,
		Workflow:    snap.Workflow,
		TraceID:     snap.TraceID,
		SpanID:      snap.SpanID,
		Parent:      snap.Parent,
	})
	for raw, v := range snap.Values {
		k, err := domain.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to rehydrate state: %w", err)
		}
		s.values[k] = deepcopy.Copy(v)
	}
	s.cache = cacheFromRecord(snap.Cache)
	s.pending = append([]domain.Key(nil), snap.Pending...)
	s.status = snap.Status
	s.version = snap.Version
	s.history = []*domain.Snapshot{s.snapshotLocked()}
	return s, nil
}

// Get returns the value at key, or domain.Undefined.
// It must not be called from inside an Update scope; use Tx.Get there.
func (s *State) Get(key domain.Key) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return domain.Undefined
	}
	return v
}

// Keys returns every key holding a value, ordered by their string form.
func (s *State) Keys() []domain.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.values)
}

// Set writes a single value atomically.
func (s *State) Set(key domain.Key, value any) error {
	return s.Update(func(tx *Tx) error {
		return tx.Set(key, value)
	})
}

// Update runs fn inside the atomic scope. The per-state lock is held for the
// whole scope; writes become visible together when fn returns nil and are
// discarded when it returns an error.
func (s *State) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{state: s, writes: make(map[domain.Key]any)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 && len(tx.fulfilled) == 0 {
		return nil
	}

	for _, k := range tx.order {
		s.values[k] = tx.writes[k]
		s.written[k] = struct{}{}
	}
	for _, node := range tx.fulfilled {
		s.cache.markFulfilled(node)
	}
	s.commitLocked()
	return nil
}

// BindTrigger copies trigger attributes into the read-only trigger namespace.
func (s *State) BindTrigger(attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range attrs {
		k := domain.TriggerKey(name)
		s.values[k] = v
		s.written[k] = struct{}{}
	}
	s.commitLocked()
}

// Cache returns the execution cache of this state.
func (s *State) Cache() *Cache {
	return s.cache
}

// Meta returns the run metadata.
func (s *State) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// SetMeta replaces the run metadata, e.g. when a rehydrated state is resumed
// under a new span.
func (s *State) SetMeta(meta Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
}

// SetStatus records the run status carried by subsequent snapshots.
func (s *State) SetStatus(status domain.RunStatus, pending []domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.pending = append([]domain.Key(nil), pending...)
}

// Pending returns the external inputs recorded as awaited.
func (s *State) Pending() []domain.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Key(nil), s.pending...)
}

// Version is the number of commits applied to this state.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Ordinal is the fork creation order; the root state is 0.
func (s *State) Ordinal() uint64 {
	return s.ordinal
}

// Snapshot returns an immutable copy of the current state.
func (s *State) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// History returns every snapshot committed so far, oldest first.
func (s *State) History() []*domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.Snapshot(nil), s.history...)
}

// Fork returns an independent deep copy with a fresh fork ordinal.
// The fork starts with an empty written set.
func (s *State) Fork() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &State{
		values:  make(map[domain.Key]any, len(s.values)),
		written: make(map[domain.Key]struct{}),
		cache:   s.cache.clone(),
		meta:    s.meta,
		status:  s.status,
		version: s.version,
		history: append([]*domain.Snapshot(nil), s.history...),
		ordinal: s.lineage.next.Add(1),
		lineage: s.lineage,
	}
	for k, v := range s.values {
		f.values[k] = deepcopy.Copy(v)
	}
	return f
}

func (s *State) commitLocked() {
	s.version++
	s.history = append(s.history, s.snapshotLocked())
}

func (s *State) snapshotLocked() *domain.Snapshot {
	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k.String()] = deepcopy.Copy(v)
	}
	return &domain.Snapshot{
		ExecutionID: s.meta.ExecutionID,
		Workflow:    s.meta.Workflow,
		TraceID:     s.meta.TraceID,
		SpanID:      s.meta.SpanID,
		Parent:      s.meta.Parent,
		Status:      s.status,
		Version:     s.version,
		Values:      values,
		Cache:       s.cache.record(),
		Pending:     append([]domain.Key(nil), s.pending...),
		CreatedAt:   time.Now(),
	}
}

func sortedKeys[V any](m map[domain.Key]V) []domain.Key {
	keys := make([]domain.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
