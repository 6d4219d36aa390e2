package runtime

import (
	"context"
	"runtime/debug"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ref"
	"github.com/aretw0/arbor/pkg/state"
)

type messageKind int

const (
	msgStream messageKind = iota
	msgFulfilled
	msgRejected
)

// message is posted by a unit goroutine to the drain loop.
type message struct {
	kind messageKind
	unit *unit

	output string
	delta  any
	done   bool

	outputs domain.Outputs
	mocked  bool

	err   *domain.WorkflowError
	stack string
}

// unit is one execution of a node. Fields other than node, span, st and ctx
// are touched by the drain loop only.
type unit struct {
	node   *graph.Node
	span   string
	seq    uint64
	parent *domain.ParentContext
	st     *state.State
	ctx    context.Context
	cancel context.CancelFunc

	ports    []*graph.Port
	conds    []*graph.Port
	always   []*graph.Port
	streamed domain.Outputs

	// Routing cursor over conds; matched tells whether the current
	// if/elif/else chain already took a port.
	cursor  int
	matched bool
	invoked map[*graph.Port]bool
}

func (u *unit) split() {
	u.invoked = make(map[*graph.Port]bool)
	for _, p := range u.ports {
		if p.Kind == graph.PortAlways {
			u.always = append(u.always, p)
		} else {
			u.conds = append(u.conds, p)
		}
	}
}

// route advances through the conditional ports and returns the ones to take.
// Before fulfilment (final false) it stops at the first condition whose
// references are not all defined, and at any else port. At fulfilment it
// settles the remaining chains and adds the unconditional ports.
func (u *unit) route(final bool) ([]*graph.Port, *domain.WorkflowError) {
	var r domain.Reader = u.st
	if !final {
		r = streamedView{u: u}
	}
	var take []*graph.Port
	for u.cursor < len(u.conds) {
		p := u.conds[u.cursor]
		hit := false
		switch {
		case p.Kind == graph.PortElse:
			if !final {
				return take, nil
			}
			hit = !u.matched
		case u.matched:
		default:
			if !final && !ref.Ready(p.Condition, r) {
				return take, nil
			}
			ok, err := ref.Bool(p.Condition, r)
			if err != nil {
				return nil, domain.NewError(domain.CodeNodeExecution, "failed to evaluate port %s: %v", p, err)
			}
			hit = ok
		}
		if hit {
			u.matched = true
			u.invoked[p] = true
			take = append(take, p)
		}
		u.cursor++
		if u.cursor < len(u.conds) && u.conds[u.cursor].Kind == graph.PortIf {
			u.matched = false
		}
	}
	if final {
		for _, p := range u.always {
			u.invoked[p] = true
			take = append(take, p)
		}
	}
	return take, nil
}

// streamedView reads the unit's own outputs from what it has streamed so far.
// Values left in state by an earlier run of the same node are hidden, so a
// looping node never routes early on the previous iteration's outputs.
type streamedView struct {
	u *unit
}

func (v streamedView) own(k domain.Key) bool {
	return k.Space == domain.NamespaceOutputs && k.Node == v.u.node.ID
}

func (v streamedView) Get(k domain.Key) any {
	if !v.own(k) {
		return v.u.st.Get(k)
	}
	if val, ok := v.u.streamed[k.Name]; ok {
		return val
	}
	return domain.Undefined
}

func (v streamedView) Keys() []domain.Key {
	var out []domain.Key
	for _, k := range v.u.st.Keys() {
		if !v.own(k) {
			out = append(out, k)
			continue
		}
		if _, ok := v.u.streamed[k.Name]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (u *unit) invokedPorts() []*graph.Port {
	var out []*graph.Port
	for _, p := range u.ports {
		if u.invoked[p] {
			out = append(out, p)
		}
	}
	return out
}

func (u *unit) invokedNames() []string {
	var out []string
	for _, p := range u.invokedPorts() {
		out = append(out, p.Name)
	}
	return out
}

// execute runs on the unit's own goroutine.
func (x *execution) execute(u *unit) {
	defer func() {
		if rec := recover(); rec != nil {
			x.post(message{
				kind:  msgRejected,
				unit:  u,
				err:   domain.NewError(domain.CodeNodeExecution, "node panicked: %v", rec),
				stack: string(debug.Stack()),
			})
		}
	}()

	if x.req.Mocks != nil {
		out, ok, err := x.req.Mocks.Lookup(u.node.ID, u.st)
		if err != nil {
			x.post(message{kind: msgRejected, unit: u, err: domain.WrapError(domain.CodeNodeExecution, err)})
			return
		}
		if ok {
			x.post(message{kind: msgFulfilled, unit: u, outputs: out, mocked: true})
			return
		}
	}

	if u.node.Run == nil {
		x.post(message{kind: msgFulfilled, unit: u, outputs: domain.Outputs{}})
		return
	}

	rc := graph.NewRunContext(graph.RunContextConfig{
		Node:        u.node,
		State:       u.st,
		ExecutionID: x.executionID,
		TraceID:     x.traceID,
		SpanID:      u.span,
		Logger:      x.logger.With("node", u.node.ID, "span_id", u.span),
		Stream: func(output string, delta any, done bool) {
			x.post(message{kind: msgStream, unit: u, output: output, delta: delta, done: done})
		},
	})

	out, err := u.node.Run(u.ctx, rc)
	if err != nil {
		x.post(message{kind: msgRejected, unit: u, err: classify(err), stack: string(debug.Stack())})
		return
	}
	x.post(message{kind: msgFulfilled, unit: u, outputs: out})
}

// post delivers m unless the run is already over.
func (x *execution) post(m message) {
	select {
	case x.inner <- m:
	case <-x.done:
	}
}

// classify keeps workflow errors raised by node code and files every other
// error under NODE_EXECUTION with its own message.
func classify(err error) *domain.WorkflowError {
	if we, ok := domain.AsWorkflowError(err); ok {
		return we
	}
	return domain.WrapError(domain.CodeNodeExecution, err)
}
