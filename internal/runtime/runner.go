// Package runtime schedules the nodes of a resolved graph: it binds triggers,
// seeds entrypoints through the readiness gate, runs one goroutine per node
// and drains their events on a single loop that owns every state write.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/cancel"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/ref"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/state"
)

const (
	DefaultCancelPollInterval = 50 * time.Millisecond
	DefaultEventBuffer        = 256
	DefaultEmitterBuffer      = 1024
)

// Output is a named workflow output.
type Output struct {
	Name  string
	Value domain.Descriptor
}

// Options configure a Runner.
type Options struct {
	Name         string
	Graph        *graph.Graph
	InputsSchema schema.Schema
	Outputs      []Output
	Emitters     []ports.Emitter
	Resolvers    []ports.Resolver
	Logger       *slog.Logger

	CancelPollInterval time.Duration
	EventBuffer        int
	EmitterBuffer      int
}

// Runner executes runs of one workflow. It is safe for concurrent use; every
// call to Stream starts an independent run.
type Runner struct {
	opts   Options
	logger *slog.Logger
	gate   *Gate
	// streamed maps node output keys to the workflow outputs that reference
	// them directly, for delta forwarding.
	streamed map[domain.Key][]string
}

// NewRunner validates the graph and prepares a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Graph == nil {
		return nil, domain.NewError(domain.CodeInvalidWorkflow, "workflow %q has no graph", opts.Name)
	}
	if err := opts.Graph.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(opts.Outputs))
	for _, o := range opts.Outputs {
		if o.Value == nil {
			return nil, domain.NewError(domain.CodeInvalidWorkflow, "output %q has no value", o.Name)
		}
		if _, dup := seen[o.Name]; dup {
			return nil, domain.NewError(domain.CodeInvalidWorkflow, "duplicate output %q", o.Name)
		}
		seen[o.Name] = struct{}{}
	}

	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.CancelPollInterval <= 0 {
		opts.CancelPollInterval = DefaultCancelPollInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.EmitterBuffer <= 0 {
		opts.EmitterBuffer = DefaultEmitterBuffer
	}

	r := &Runner{
		opts:     opts,
		logger:   opts.Logger.With("workflow", opts.Name),
		gate:     NewGate(opts.Graph),
		streamed: make(map[domain.Key][]string),
	}
	for _, o := range opts.Outputs {
		if kr, ok := o.Value.(ref.KeyRef); ok && kr.Key.Space == domain.NamespaceOutputs {
			r.streamed[kr.Key] = append(r.streamed[kr.Key], o.Name)
		}
	}
	return r, nil
}

// Graph returns the graph the runner schedules.
func (r *Runner) Graph() *graph.Graph { return r.opts.Graph }

// Request describes one run.
type Request struct {
	Inputs map[string]any
	// State continues an existing in-memory state.
	State *state.State
	// Snapshot rehydrates a state.
	Snapshot *domain.Snapshot
	// Entrypoints overrides the nodes the run starts from, by ID.
	Entrypoints []string
	// ExternalInputs supplies values for declared external input slots and
	// restarts the nodes awaiting them.
	ExternalInputs map[domain.Key]any
	// PreviousExecutionID loads the state of an earlier run through the resolvers.
	PreviousExecutionID string
	Trigger             *domain.Trigger
	// MaxConcurrency bounds the number of nodes running at once; 0 is unbounded.
	MaxConcurrency int
	Timeout        time.Duration
	Cancel         cancel.Signal
	Mocks          registry.MockStrategy
	// Emitters are added to the runner's emitters for this run only.
	Emitters []ports.Emitter
}

// Result is the terminal outcome of a run.
type Result struct {
	ExecutionID string
	Status      domain.RunStatus
	Outputs     map[string]any
	Error       *domain.WorkflowError
	Pending     []domain.Key
	Snapshot    *domain.Snapshot
}

// Stream is a run in progress.
type Stream struct {
	executionID string
	events      chan *domain.Event
	done        chan struct{}
	result      *Result
}

// ExecutionID identifies the run.
func (s *Stream) ExecutionID() string { return s.executionID }

// Events yields every lifecycle event and is closed after the terminal one,
// once all emitters have been flushed. It must be drained.
func (s *Stream) Events() <-chan *domain.Event { return s.events }

// Result blocks until the run is over.
func (s *Stream) Result() *Result {
	<-s.done
	return s.result
}

// Wait drains the remaining events and returns the result.
func (s *Stream) Wait() *Result {
	for range s.events {
	}
	return s.Result()
}

// Stream validates the request, starts the run and returns immediately.
// Initialization failures are returned as *domain.WorkflowError before any
// node executes.
func (r *Runner) Stream(ctx context.Context, req Request) (*Stream, error) {
	x, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	x.start(ctx)
	return x.stream, nil
}

// Run streams the run and waits for its result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	s, err := r.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Wait(), nil
}
