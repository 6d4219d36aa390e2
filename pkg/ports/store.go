package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// SnapshotStore defines the interface for persisting run snapshots.
// This allows for durable execution, enabling "Pause & Resume" workflows.
type SnapshotStore interface {
	// Save persists the snapshot under the given execution ID, replacing any previous one.
	Save(ctx context.Context, executionID string, snap *domain.Snapshot) error

	// Load retrieves the latest snapshot for an execution ID.
	// Returns domain.ErrExecutionNotFound if the execution does not exist.
	Load(ctx context.Context, executionID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a given execution ID.
	Delete(ctx context.Context, executionID string) error

	// List returns the IDs of all stored executions.
	List(ctx context.Context) ([]string, error)
}

// EventLog is implemented by stores that also keep an append-only history of events.
type EventLog interface {
	AppendEvent(ctx context.Context, executionID string, event *domain.Event) error
	Events(ctx context.Context, executionID string) ([]*domain.Event, error)
}
