package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates access to stored executions, ensuring safe concurrent
// operations. It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.SnapshotStore
	log   ports.EventLog

	mu    sync.Mutex
	locks map[string]*lockEntry
	// spans maps workflow span IDs of live runs to their execution IDs.
	spans map[string]string

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

var (
	_ ports.Emitter  = (*Manager)(nil)
	_ ports.Resolver = (*Manager)(nil)
)

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over store. Events are recorded only when the
// store also implements ports.EventLog.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		spans:   make(map[string]string),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	if l, ok := store.(ports.EventLog); ok {
		m.log = l
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking it.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// SnapshotState saves snap as the latest state of its execution. Snapshots
// older than the stored one are ignored, so a slow emitter never rolls an
// execution back.
func (m *Manager) SnapshotState(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ExecutionID == "" {
		return errors.New("snapshot has no execution id")
	}
	if snap.SpanID != "" {
		m.mu.Lock()
		m.spans[snap.SpanID] = snap.ExecutionID
		m.mu.Unlock()
	}
	return m.WithLock(ctx, snap.ExecutionID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, snap.ExecutionID)
		switch {
		case errors.Is(err, domain.ErrExecutionNotFound):
		case err != nil:
			return fmt.Errorf("failed to load execution %s: %w", snap.ExecutionID, err)
		case current.Version > snap.Version:
			return nil
		}
		return m.store.Save(ctx, snap.ExecutionID, snap)
	})
}

// EmitEvent appends ev to the execution's event log. Events are matched to
// their execution through the workflow span, which the Manager learns from
// the run's snapshots; events of runs it has not seen are dropped.
func (m *Manager) EmitEvent(ctx context.Context, ev *domain.Event) error {
	if m.log == nil {
		return nil
	}
	id, ok := m.executionOf(ev)
	if !ok {
		return nil
	}
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.log.AppendEvent(ctx, id, ev)
	})
}

// LoadState implements ports.Resolver. Unknown executions resolve to nil.
func (m *Manager) LoadState(ctx context.Context, executionID string) (*ports.ResolvedState, error) {
	snap, err := m.Load(ctx, executionID)
	if errors.Is(err, domain.ErrExecutionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ports.ResolvedState{Snapshot: snap, TraceID: snap.TraceID, SpanID: snap.SpanID}, nil
}

// Load retrieves the latest snapshot of an execution.
func (m *Manager) Load(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, executionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, executionID)
		return err
	})
	return snap, err
}

// Events returns the recorded events of an execution.
func (m *Manager) Events(ctx context.Context, executionID string) ([]*domain.Event, error) {
	if m.log == nil {
		return nil, nil
	}
	return m.log.Events(ctx, executionID)
}

// Delete removes the execution from the store.
func (m *Manager) Delete(ctx context.Context, executionID string) error {
	m.forget(executionID)
	return m.WithLock(ctx, executionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, executionID)
	})
}

func (m *Manager) executionOf(ev *domain.Event) (string, bool) {
	span := ev.SpanID
	if !ev.Name.IsWorkflow() {
		span = ""
		for p := ev.Parent; p != nil; p = p.Parent {
			if p.Kind == domain.ParentWorkflow {
				span = p.SpanID
				break
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.spans[span]
	if ok && ev.Name.IsTerminal() {
		delete(m.spans, span)
	}
	return id, ok
}

func (m *Manager) forget(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for span, id := range m.spans {
		if id == executionID {
			delete(m.spans, span)
		}
	}
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes fn while holding the lock for the execution.
func (m *Manager) WithLock(ctx context.Context, executionID string, fn func(context.Context) error) error {
	entry := m.acquire(executionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(executionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, executionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"execution_id", executionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
