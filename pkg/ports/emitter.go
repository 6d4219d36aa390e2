package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Emitter observes a run. Calls happen on a background worker, in commit
// order; an error or panic is logged and never aborts the run.
type Emitter interface {
	// SnapshotState receives the state after every atomic commit.
	SnapshotState(ctx context.Context, snap *domain.Snapshot) error

	// EmitEvent receives every lifecycle event.
	EmitEvent(ctx context.Context, event *domain.Event) error
}

// ResolvedState is what a Resolver returns for a previous execution.
type ResolvedState struct {
	Snapshot *domain.Snapshot
	TraceID  string
	SpanID   string
}

// Resolver loads the state of a previous execution.
type Resolver interface {
	// LoadState returns (nil, nil) when the resolver does not know the execution.
	LoadState(ctx context.Context, executionID string) (*ResolvedState, error)
}
