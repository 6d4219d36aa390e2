package arbor_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/cancel"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ref"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
)

func outputs(o domain.Outputs) graph.RunFunc {
	return func(context.Context, *graph.RunContext) (domain.Outputs, error) { return o, nil }
}

// reviewGraph drafts a text and waits for an external approval.
func reviewGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := dsl.New()
	b.Add("draft").Run(outputs(domain.Outputs{"text": "hello"})).Go("review")
	b.Add("review").
		Await("approval").
		Run(func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
			return domain.Outputs{"approved": rc.External("approval")}, nil
		})
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestNew_InvalidDeclarations(t *testing.T) {
	_, err := arbor.New("bad", "not a graph")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidWorkflow, domain.CodeOf(err))
	assert.ErrorIs(t, err, graph.ErrUnsupportedDeclaration)

	loop := graph.NewNode("loop", nil)
	_, err = arbor.New("loop", graph.Must(graph.Then(loop, loop)))
	assert.Equal(t, domain.CodeInvalidWorkflow, domain.CodeOf(err))

	_, err = arbor.New("cfg", loop, arbor.WithConfig(config.Config{MaxConcurrency: -1}))
	assert.Equal(t, domain.CodeInvalidWorkflow, domain.CodeOf(err))
}

func TestWorkflow_InputsSchema(t *testing.T) {
	wf, err := arbor.New("typed", graph.NewNode("A", nil),
		arbor.WithInputsSchema(schema.Schema{"n": schema.Int()}))
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), arbor.WithInputs(map[string]any{"n": "three"}))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInputs, domain.CodeOf(err))

	res, err := wf.Run(context.Background(), arbor.WithInputs(map[string]any{"n": 3}))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, res.Status)
}

func TestWorkflow_PersistsAndResumesThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(sqlite.Config{Path: filepath.Join(t.TempDir(), "arbor.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sessions := session.NewManager(store)
	wf, err := arbor.New("review", reviewGraph(t),
		arbor.WithEmitters(sessions),
		arbor.WithResolvers(sessions),
		arbor.WithOutput("approved", ref.Output("review", "approved")),
		arbor.WithOutput("text", ref.Output("draft", "text")),
	)
	require.NoError(t, err)

	first, err := wf.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaused, first.Status)
	assert.Equal(t, []domain.Key{domain.ExternalKey("review", "approval")}, first.Pending)

	paused, err := store.ListByStatus(ctx, domain.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ExecutionID}, paused)

	events, err := sessions.Events(ctx, first.ExecutionID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventWorkflowInitiated, events[0].Name)
	assert.Equal(t, domain.EventWorkflowPaused, events[len(events)-1].Name)

	second, err := wf.Run(ctx,
		arbor.WithPreviousExecution(first.ExecutionID),
		arbor.WithExternalInputs(map[domain.Key]any{domain.ExternalKey("review", "approval"): true}),
	)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFulfilled, second.Status)
	assert.Equal(t, map[string]any{"approved": true, "text": "hello"}, second.Outputs)
	assert.Equal(t, first.Snapshot.TraceID, second.Snapshot.TraceID)

	fulfilled, err := store.ListByStatus(ctx, domain.StatusFulfilled)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ExecutionID}, fulfilled)
}

func TestWorkflow_UnknownPreviousExecution(t *testing.T) {
	wf, err := arbor.New("review", reviewGraph(t),
		arbor.WithResolvers(session.NewManager(memory.NewStore())))
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), arbor.WithPreviousExecution("nope"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInputs, domain.CodeOf(err))
}

func TestWorkflow_Observability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	b := dsl.New()
	b.Add("fetch").Run(outputs(domain.Outputs{"n": 1})).Go("store")
	b.Add("store").Run(outputs(nil))
	g, err := b.Build()
	require.NoError(t, err)

	wf, err := arbor.New("pipeline", g,
		arbor.WithEmitters(metrics, observability.NewTracer(provider.Tracer("arbor-test"))))
	require.NoError(t, err)

	res, err := wf.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StatusFulfilled, res.Status)
	require.NoError(t, provider.ForceFlush(context.Background()))

	count, err := testutil.GatherAndCount(reg, "arbor_node_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per node")

	names := make(map[string]bool)
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.Equal(t, map[string]bool{
		"workflow.run: pipeline": true,
		"node: fetch":            true,
		"node: store":            true,
	}, names)
}

func TestWorkflow_RunEmittersAreScopedToTheRun(t *testing.T) {
	wf, err := arbor.New("single", graph.NewNode("A", nil))
	require.NoError(t, err)

	rec := &recorder{}
	_, err = wf.Run(context.Background(), arbor.WithRunEmitters(rec))
	require.NoError(t, err)
	assert.Len(t, rec.events, 4)

	_, err = wf.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.events, 4)
}

func TestWorkflow_ConfigDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Timeout = 20 * time.Millisecond
	cfg.CancelPollInterval = 5 * time.Millisecond

	slow := graph.NewNode("slow", func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	wf, err := arbor.New("slow", slow, arbor.WithConfig(cfg))
	require.NoError(t, err)

	res, err := wf.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, res.Status)
	assert.Equal(t, domain.CodeWorkflowTimeout, res.Error.Code)

	// A run option overrides the configured timeout.
	tok := cancel.NewToken()
	tok.Set()
	res, err = wf.Run(context.Background(), arbor.WithTimeout(0), arbor.WithCancelSignal(tok))
	require.NoError(t, err)
	assert.Equal(t, domain.CodeWorkflowCancelled, res.Error.Code)
}

func TestWorkflow_MocksAndEntrypoints(t *testing.T) {
	fail := errors.New("should be mocked")
	b := dsl.New()
	b.Add("call").
		Run(func(context.Context, *graph.RunContext) (domain.Outputs, error) { return nil, fail }).
		Go("use")
	b.Add("use").Run(func(ctx context.Context, rc *graph.RunContext) (domain.Outputs, error) {
		return domain.Outputs{"got": rc.Output("call", "answer")}, nil
	})
	g, err := b.Build()
	require.NoError(t, err)

	wf, err := arbor.New("mocked", g, arbor.WithOutput("got", ref.Output("use", "got")))
	require.NoError(t, err)

	mocks := registry.NewRegistry().Always("call", domain.Outputs{"answer": 42})
	res, err := wf.Run(context.Background(), arbor.WithMocks(mocks), arbor.WithMaxConcurrency(1))
	require.NoError(t, err)
	require.Equal(t, domain.StatusFulfilled, res.Status)
	assert.Equal(t, 42, res.Outputs["got"])

	_, err = wf.Run(context.Background(), arbor.WithEntrypoints("ghost"))
	assert.Equal(t, domain.CodeInvalidInputs, domain.CodeOf(err))
}

type recorder struct {
	events []*domain.Event
}

func (r *recorder) SnapshotState(context.Context, *domain.Snapshot) error { return nil }

func (r *recorder) EmitEvent(_ context.Context, ev *domain.Event) error {
	r.events = append(r.events, ev)
	return nil
}
