package graph

import (
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// StreamFunc delivers a streamed output delta to the runtime. done marks the
// end of the stream, in which case delta is the complete value.
type StreamFunc func(output string, delta any, done bool)

// RunContextConfig carries what the runtime knows about one node execution.
type RunContextConfig struct {
	Node        *Node
	State       domain.Reader
	ExecutionID string
	TraceID     string
	SpanID      string
	Logger      *slog.Logger
	Stream      StreamFunc
}

// RunContext is handed to a node body. It gives read access to run state and
// a way to stream partial outputs.
type RunContext struct {
	cfg RunContextConfig
}

// NewRunContext is called by the runtime for every node execution.
func NewRunContext(cfg RunContextConfig) *RunContext {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Stream == nil {
		cfg.Stream = func(string, any, bool) {}
	}
	return &RunContext{cfg: cfg}
}

func (rc *RunContext) Node() *Node           { return rc.cfg.Node }
func (rc *RunContext) ExecutionID() string   { return rc.cfg.ExecutionID }
func (rc *RunContext) TraceID() string       { return rc.cfg.TraceID }
func (rc *RunContext) SpanID() string        { return rc.cfg.SpanID }
func (rc *RunContext) Logger() *slog.Logger  { return rc.cfg.Logger }
func (rc *RunContext) State() domain.Reader  { return rc.cfg.State }
func (rc *RunContext) Get(k domain.Key) any  { return rc.cfg.State.Get(k) }
func (rc *RunContext) Input(name string) any { return rc.Get(domain.InputKey(name)) }

// Output reads an output of another node.
func (rc *RunContext) Output(node, name string) any {
	return rc.Get(domain.OutputKey(node, name))
}

// External reads one of this node's external inputs.
func (rc *RunContext) External(name string) any {
	return rc.Get(domain.ExternalKey(rc.cfg.Node.ID, name))
}

// Trigger reads an attribute of the bound trigger.
func (rc *RunContext) Trigger(name string) any {
	return rc.Get(domain.TriggerKey(name))
}

// Resolve evaluates a descriptor against run state.
func (rc *RunContext) Resolve(d domain.Descriptor) (any, error) {
	return d.Resolve(rc.cfg.State)
}

// Stream opens a stream for one named output.
func (rc *RunContext) Stream(output string) *OutputStream {
	return &OutputStream{name: output, send: rc.cfg.Stream}
}

// OutputStream writes partial values of one output.
type OutputStream struct {
	name string
	send StreamFunc

	mu     sync.Mutex
	closed bool
}

// Send emits a delta. Sends after Close are dropped.
func (s *OutputStream) Send(delta any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.send(s.name, delta, false)
}

// Close ends the stream with the complete value, which becomes the node's
// output unless the node returns its own value under the same name.
func (s *OutputStream) Close(value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.send(s.name, value, true)
}
