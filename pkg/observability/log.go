package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// LogEmitter writes lifecycle events to a slog logger. Streaming events are
// logged at debug level, rejections at warn level and the rest at info.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger discards everything.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) SnapshotState(ctx context.Context, snap *domain.Snapshot) error {
	l.logger.DebugContext(ctx, "snapshot",
		"execution_id", snap.ExecutionID,
		"version", snap.Version,
		"status", snap.Status,
	)
	return nil
}

func (l *LogEmitter) EmitEvent(ctx context.Context, ev *domain.Event) error {
	attrs := []any{"trace_id", ev.TraceID, "span_id", ev.SpanID}
	level := slog.LevelInfo

	switch body := ev.Body.(type) {
	case domain.WorkflowInitiatedBody:
		attrs = append(attrs, "workflow", body.Workflow)
		if body.Trigger != "" {
			attrs = append(attrs, "trigger", body.Trigger)
		}
	case domain.WorkflowStreamingBody:
		level = slog.LevelDebug
		attrs = append(attrs, "output", body.Output, "state", body.State)
	case domain.WorkflowFulfilledBody:
		attrs = append(attrs, "outputs", len(body.Outputs))
	case domain.WorkflowPausedBody:
		attrs = append(attrs, "pending", len(body.ExternalInputs))
	case domain.WorkflowRejectedBody:
		level = slog.LevelWarn
		attrs = append(attrs, "err", body.Error)
	case domain.NodeInitiatedBody:
		attrs = append(attrs, "node", body.Node)
		if body.InvokedBy != "" {
			attrs = append(attrs, "invoked_by", body.InvokedBy)
		}
	case domain.NodeStreamingBody:
		level = slog.LevelDebug
		attrs = append(attrs, "node", body.Node, "output", body.Output, "done", body.Done)
	case domain.NodeFulfilledBody:
		attrs = append(attrs, "node", body.Node, "ports", body.InvokedPorts)
		if body.Mocked {
			attrs = append(attrs, "mocked", true)
		}
	case domain.NodeRejectedBody:
		level = slog.LevelWarn
		attrs = append(attrs, "node", body.Node, "err", body.Error)
	}

	l.logger.Log(ctx, level, string(ev.Name), attrs...)
	return nil
}
