package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

func newTestRunner(t *testing.T, decl any, configure ...func(*Options)) *Runner {
	t.Helper()
	g, err := graph.Resolve(decl)
	require.NoError(t, err)
	opts := Options{Name: "test", Graph: g, CancelPollInterval: 5 * time.Millisecond}
	for _, c := range configure {
		c(&opts)
	}
	r, err := NewRunner(opts)
	require.NoError(t, err)
	return r
}

func withOutputs(outputs ...Output) func(*Options) {
	return func(o *Options) { o.Outputs = outputs }
}

// run executes req and collects every event of the stream.
func run(t *testing.T, r *Runner, req Request) ([]*domain.Event, *Result) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return runCtx(t, ctx, r, req)
}

func runCtx(t *testing.T, ctx context.Context, r *Runner, req Request) ([]*domain.Event, *Result) {
	t.Helper()
	s, err := r.Stream(ctx, req)
	require.NoError(t, err)

	var events []*domain.Event
	for ev := range s.Events() {
		events = append(events, ev)
	}
	return events, s.Result()
}

func eventNames(events []*domain.Event) []domain.EventName {
	out := make([]domain.EventName, len(events))
	for i, ev := range events {
		out[i] = ev.Name
	}
	return out
}

// nodesWith returns, in order, the node IDs of events with the given name.
func nodesWith(events []*domain.Event, name domain.EventName) []string {
	var out []string
	for _, ev := range events {
		if ev.Name != name {
			continue
		}
		switch b := ev.Body.(type) {
		case domain.NodeInitiatedBody:
			out = append(out, b.Node)
		case domain.NodeFulfilledBody:
			out = append(out, b.Node)
		case domain.NodeRejectedBody:
			out = append(out, b.Node)
		case domain.NodeStreamingBody:
			out = append(out, b.Node)
		}
	}
	return out
}

func rejections(events []*domain.Event) map[string]domain.ErrorCode {
	out := make(map[string]domain.ErrorCode)
	for _, ev := range events {
		if b, ok := ev.Body.(domain.NodeRejectedBody); ok {
			out[b.Node] = b.Error.Code
		}
	}
	return out
}

func fulfilledBody(t *testing.T, events []*domain.Event, node string) domain.NodeFulfilledBody {
	t.Helper()
	for _, ev := range events {
		if b, ok := ev.Body.(domain.NodeFulfilledBody); ok && b.Node == node {
			return b
		}
	}
	t.Fatalf("node %s did not fulfil", node)
	return domain.NodeFulfilledBody{}
}

// emit returns a RunFunc producing fixed outputs.
func emit(out domain.Outputs) graph.RunFunc {
	return func(context.Context, *graph.RunContext) (domain.Outputs, error) {
		return out, nil
	}
}

// blockUntilCancelled signals started and waits for the unit context.
func blockUntilCancelled(started *sync.WaitGroup) graph.RunFunc {
	return func(ctx context.Context, _ *graph.RunContext) (domain.Outputs, error) {
		started.Done()
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// recorder is an emitter that keeps everything it receives.
type recorder struct {
	mu        sync.Mutex
	events    []*domain.Event
	snapshots []*domain.Snapshot
}

func (r *recorder) SnapshotState(_ context.Context, s *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *recorder) EmitEvent(_ context.Context, ev *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
