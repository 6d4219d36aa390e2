package arbor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/cancel"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/state"
)

// Result is the terminal outcome of a run.
type Result = runtime.Result

// Stream is a run in progress. Its events must be drained.
type Stream = runtime.Stream

// Workflow is the high-level entry point of the library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Workflow struct {
	Name string

	runner *runtime.Runner
	cfg    config.Config
}

type settings struct {
	inputs    schema.Schema
	outputs   []runtime.Output
	emitters  []ports.Emitter
	resolvers []ports.Resolver
	logger    *slog.Logger
	cfg       *config.Config
}

// Option defines a functional option for configuring a Workflow.
type Option func(*settings)

// WithInputsSchema validates the inputs of every fresh run.
func WithInputsSchema(s schema.Schema) Option {
	return func(o *settings) {
		o.inputs = s
	}
}

// WithOutput declares a workflow output resolved from the final state.
// Outputs that point straight at a node output are streamed as they change.
func WithOutput(name string, value domain.Descriptor) Option {
	return func(o *settings) {
		o.outputs = append(o.outputs, runtime.Output{Name: name, Value: value})
	}
}

// WithEmitters registers emitters that observe every run.
func WithEmitters(emitters ...ports.Emitter) Option {
	return func(o *settings) {
		o.emitters = append(o.emitters, emitters...)
	}
}

// WithResolvers registers resolvers consulted by WithPreviousExecution, in order.
func WithResolvers(resolvers ...ports.Resolver) Option {
	return func(o *settings) {
		o.resolvers = append(o.resolvers, resolvers...)
	}
}

// WithLogger sets a custom structured logger for the workflow.
func WithLogger(logger *slog.Logger) Option {
	return func(o *settings) {
		o.logger = logger
	}
}

// WithConfig applies runtime configuration. Without WithLogger, the logger is
// built from the configured level.
func WithConfig(cfg config.Config) Option {
	return func(o *settings) {
		o.cfg = &cfg
	}
}

// New resolves decl into a graph, validates it and prepares the workflow.
// decl may be anything graph.Resolve accepts.
func New(name string, decl any, opts ...Option) (*Workflow, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	cfg := config.Default()
	if s.cfg != nil {
		if err := s.cfg.Validate(); err != nil {
			return nil, domain.WrapError(domain.CodeInvalidWorkflow, err)
		}
		cfg = *s.cfg
	}

	// Ensure logger is initialized (so we don't pass nil to the runtime)
	logger := s.logger
	if logger == nil {
		if s.cfg != nil {
			logger = cfg.Logger()
		} else {
			logger = logging.NewNop()
		}
	}

	g, err := graph.Resolve(decl)
	if err != nil {
		return nil, domain.WrapError(domain.CodeInvalidWorkflow, err)
	}

	runner, err := runtime.NewRunner(runtime.Options{
		Name:               name,
		Graph:              g,
		InputsSchema:       s.inputs,
		Outputs:            s.outputs,
		Emitters:           s.emitters,
		Resolvers:          s.resolvers,
		Logger:             logger,
		CancelPollInterval: cfg.CancelPollInterval,
		EventBuffer:        cfg.EventBuffer,
		EmitterBuffer:      cfg.EmitterBuffer,
	})
	if err != nil {
		return nil, err
	}

	return &Workflow{Name: name, runner: runner, cfg: cfg}, nil
}

// Graph returns the resolved topology.
func (w *Workflow) Graph() *graph.Graph {
	return w.runner.Graph()
}

// Stream starts a run and returns immediately. Initialization failures
// (invalid inputs, incompatible trigger, unknown entrypoint, unresolvable
// previous execution) are returned before any node executes.
func (w *Workflow) Stream(ctx context.Context, opts ...RunOption) (*Stream, error) {
	return w.runner.Stream(ctx, w.request(opts))
}

// Run starts a run and waits for its result.
func (w *Workflow) Run(ctx context.Context, opts ...RunOption) (*Result, error) {
	return w.runner.Run(ctx, w.request(opts))
}

func (w *Workflow) request(opts []RunOption) runtime.Request {
	req := runtime.Request{
		MaxConcurrency: w.cfg.MaxConcurrency,
		Timeout:        w.cfg.Timeout,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// RunOption configures a single run.
type RunOption func(*runtime.Request)

// WithInputs sets the workflow inputs.
func WithInputs(inputs map[string]any) RunOption {
	return func(r *runtime.Request) {
		r.Inputs = inputs
	}
}

// WithState continues an in-memory state.
func WithState(st *state.State) RunOption {
	return func(r *runtime.Request) {
		r.State = st
	}
}

// WithSnapshot rehydrates the state of an earlier run.
func WithSnapshot(snap *domain.Snapshot) RunOption {
	return func(r *runtime.Request) {
		r.Snapshot = snap
	}
}

// WithEntrypoints starts the run from the given node IDs.
func WithEntrypoints(ids ...string) RunOption {
	return func(r *runtime.Request) {
		r.Entrypoints = append(r.Entrypoints, ids...)
	}
}

// WithExternalInputs supplies values for paused external input slots.
func WithExternalInputs(inputs map[domain.Key]any) RunOption {
	return func(r *runtime.Request) {
		r.ExternalInputs = inputs
	}
}

// WithPreviousExecution resumes from the state of an earlier execution,
// loaded through the workflow's resolvers.
func WithPreviousExecution(executionID string) RunOption {
	return func(r *runtime.Request) {
		r.PreviousExecutionID = executionID
	}
}

// WithTrigger delivers a trigger instance to the run.
func WithTrigger(t *domain.Trigger) RunOption {
	return func(r *runtime.Request) {
		r.Trigger = t
	}
}

// WithMaxConcurrency bounds the nodes running at once. 0 is unbounded.
func WithMaxConcurrency(n int) RunOption {
	return func(r *runtime.Request) {
		r.MaxConcurrency = n
	}
}

// WithTimeout rejects the run with WORKFLOW_TIMEOUT after d.
func WithTimeout(d time.Duration) RunOption {
	return func(r *runtime.Request) {
		r.Timeout = d
	}
}

// WithCancelSignal cancels the run once the signal is set.
func WithCancelSignal(s cancel.Signal) RunOption {
	return func(r *runtime.Request) {
		r.Cancel = s
	}
}

// WithMocks short-circuits node bodies with canned outputs.
func WithMocks(m registry.MockStrategy) RunOption {
	return func(r *runtime.Request) {
		r.Mocks = m
	}
}

// WithRunEmitters adds emitters for this run only.
func WithRunEmitters(emitters ...ports.Emitter) RunOption {
	return func(r *runtime.Request) {
		r.Emitters = append(r.Emitters, emitters...)
	}
}
