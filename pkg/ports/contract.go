package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
)

func contractSnapshot(id string) *domain.Snapshot {
	return &domain.Snapshot{
		ExecutionID: id,
		Workflow:    "contract",
		TraceID:     "trace-" + id,
		SpanID:      "span-" + id,
		Status:      domain.StatusPaused,
		Version:     3,
		Values: map[string]any{
			"inputs.X":         "yes",
			"outputs.A.result": "bar",
			"outputs.A.count":  42,
		},
		Cache: domain.CacheRecord{
			Seq:         2,
			Initiated:   []string{"A|root"},
			InitiatedAt: map[string]uint64{"A": 1},
			FulfilledAt: map[string]uint64{"A": 2},
		},
		Pending:   []domain.Key{domain.ExternalKey("B", "approval")},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	executionID := "contract-test-execution-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(executionID)

		err := store.Save(ctx, executionID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, executionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.ExecutionID, loaded.ExecutionID)
		assert.Equal(t, snap.TraceID, loaded.TraceID)
		assert.Equal(t, snap.Status, loaded.Status)
		assert.Equal(t, snap.Version, loaded.Version)
		assert.Equal(t, "bar", loaded.Values["outputs.A.result"])
		// JSON persistence turns ints into float64; only existence is part of the contract.
		assert.NotNil(t, loaded.Values["outputs.A.count"])
		assert.Equal(t, snap.Pending, loaded.Pending)
		assert.Equal(t, snap.Cache.FulfilledAt, loaded.Cache.FulfilledAt)
		assert.Equal(t, "bar", loaded.Get(domain.OutputKey("A", "result")))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := contractSnapshot(executionID)
		snap.Version = 7
		snap.Status = domain.StatusFulfilled
		require.NoError(t, store.Save(ctx, executionID, snap))

		loaded, err := store.Load(ctx, executionID)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), loaded.Version)
		assert.Equal(t, domain.StatusFulfilled, loaded.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+executionID)
		assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, executionID, contractSnapshot(executionID))
		require.NoError(t, err)

		err = store.Delete(ctx, executionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, executionID)
		assert.ErrorIs(t, err, domain.ErrExecutionNotFound, "Load after Delete should return ErrExecutionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := executionID + "-1"
		id2 := executionID + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1))
		_ = store.Save(ctx, id2, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunEventLogContract verifies that events are appended and returned in order.
func RunEventLogContract(t *testing.T, log EventLog) {
	ctx := context.Background()
	executionID := "contract-events-" + time.Now().Format("20060102150405")

	first := domain.NewEvent(domain.EventWorkflowInitiated, "trace", "span", nil,
		domain.WorkflowInitiatedBody{Workflow: "contract"})
	second := domain.NewEvent(domain.EventWorkflowFulfilled, "trace", "span", nil,
		domain.WorkflowFulfilledBody{Outputs: map[string]any{"ok": true}})

	require.NoError(t, log.AppendEvent(ctx, executionID, first))
	require.NoError(t, log.AppendEvent(ctx, executionID, second))

	events, err := log.Events(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, domain.EventWorkflowInitiated, events[0].Name)
	assert.Equal(t, domain.EventWorkflowFulfilled, events[1].Name)
	assert.Equal(t, "trace", events[1].TraceID)

	empty, err := log.Events(ctx, "unknown-"+executionID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
