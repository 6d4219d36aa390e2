package runtime

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/state"
)

// dispatch is a node waiting for a slot.
type dispatch struct {
	node    *graph.Node
	st      *state.State
	invoker *unit
}

// execution is the bookkeeping of one run. Everything below the channels is
// owned by the drain loop goroutine.
type execution struct {
	r      *Runner
	req    Request
	g      *graph.Graph
	logger *slog.Logger

	executionID string
	traceID     string
	spanID      string
	parent      *domain.ParentContext
	self        *domain.ParentContext
	resumed     bool
	entrypoints []*graph.Node

	stream  *Stream
	inner   chan message
	control chan signal
	done    chan struct{}
	pipe    *pipeline
	group   errgroup.Group

	unitCtx   context.Context
	stopUnits context.CancelFunc

	root        *state.State
	states      []*state.State
	max         int
	active      map[string]*unit
	queue       []dispatch
	seq         uint64
	pending     []domain.Key
	rejected    *domain.WorkflowError
	lastOutputs map[string]any
}

func newExecution(r *Runner, req Request, st *state.State, entrypoints []*graph.Node, resumed bool) *execution {
	meta := st.Meta()
	x := &execution{
		r:           r,
		req:         req,
		g:           r.opts.Graph,
		logger:      r.logger.With("execution_id", meta.ExecutionID),
		executionID: meta.ExecutionID,
		traceID:     meta.TraceID,
		spanID:      meta.SpanID,
		parent:      meta.Parent,
		resumed:     resumed,
		entrypoints: entrypoints,
		stream: &Stream{
			executionID: meta.ExecutionID,
			events:      make(chan *domain.Event, r.opts.EventBuffer),
			done:        make(chan struct{}),
		},
		inner:   make(chan message),
		control: make(chan signal),
		done:    make(chan struct{}),
		root:    st,
		states:  []*state.State{st},
		max:     req.MaxConcurrency,
		active:  make(map[string]*unit),
	}
	x.self = &domain.ParentContext{
		Kind:   domain.ParentWorkflow,
		Name:   r.opts.Name,
		SpanID: x.spanID,
		Parent: x.parent,
	}
	emitters := make([]ports.Emitter, 0, len(r.opts.Emitters)+len(req.Emitters))
	emitters = append(emitters, r.opts.Emitters...)
	emitters = append(emitters, req.Emitters...)
	x.pipe = newPipeline(emitters, r.opts.EmitterBuffer, x.logger)
	return x
}

func (x *execution) start(ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	x.unitCtx, x.stopUnits = context.WithCancel(detached)

	x.group.Go(func() error { return x.pipe.work(detached) })
	x.group.Go(func() error { return x.watchCancel(ctx) })
	if x.req.Timeout > 0 {
		x.group.Go(func() error { return x.watchTimeout(x.req.Timeout) })
	}
	go x.loop()
}

func (x *execution) loop() {
	x.begin()
	for x.rejected == nil && (len(x.active) > 0 || len(x.queue) > 0) {
		select {
		case m := <-x.inner:
			x.safely(func() { x.handle(m) })
		case sig := <-x.control:
			x.logger.Info("workflow interrupted", "code", sig.code)
			x.abort(domain.NewError(sig.code, "%s", sig.message))
		}
	}
	x.finish()
}

// begin announces the run and seeds the entrypoints. Every entrypoint goes
// through the gate before any of them is dispatched.
func (x *execution) begin() {
	// Inputs awaited by an earlier run stay pending until supplied.
	x.addPending(x.root.Pending())
	x.root.SetStatus(domain.StatusRunning, nil)

	name := domain.EventWorkflowInitiated
	if x.resumed {
		name = domain.EventWorkflowResumed
	}
	body := domain.WorkflowInitiatedBody{
		Workflow: x.r.opts.Name,
		Inputs:   x.req.Inputs,
	}
	if x.req.Trigger != nil {
		body.Trigger = x.req.Trigger.Type.Name
	}
	for k := range x.req.ExternalInputs {
		body.ExternalInputs = append(body.ExternalInputs, k.String())
	}
	sort.Strings(body.ExternalInputs)
	x.pipe.snapshot(x.root.Snapshot())
	x.emit(domain.NewEvent(name, x.traceID, x.spanID, x.parent, body))
	x.logger.Info("workflow initiated", "resumed", x.resumed, "entrypoints", len(x.entrypoints))

	var ready []*graph.Node
	for _, n := range x.entrypoints {
		ok, pending, err := x.r.gate.Ready(n, x.root, x.spanID, true)
		if err != nil {
			x.abort(asWorkflowError(err))
			return
		}
		x.addPending(pending)
		if ok {
			ready = append(ready, n)
		}
	}
	for _, n := range ready {
		x.dispatch(dispatch{node: n, st: x.root})
	}
}

func (x *execution) dispatch(d dispatch) {
	if x.max > 0 && (len(x.active) >= x.max || len(x.queue) > 0) {
		x.queue = append(x.queue, d)
		return
	}
	x.startUnit(d)
}

func (x *execution) drainQueue() {
	for x.rejected == nil && len(x.queue) > 0 && (x.max == 0 || len(x.active) < x.max) {
		d := x.queue[0]
		x.queue = x.queue[1:]
		x.startUnit(d)
	}
}

func (x *execution) startUnit(d dispatch) {
	x.seq++
	ctx, cancel := context.WithCancel(x.unitCtx)
	u := &unit{
		node:     d.node,
		span:     uuid.NewString(),
		seq:      x.seq,
		st:       d.st,
		ctx:      ctx,
		cancel:   cancel,
		ports:    d.node.Ports(),
		streamed: domain.Outputs{},
	}
	u.split()

	body := domain.NodeInitiatedBody{Node: d.node.ID}
	u.parent = x.self
	if d.invoker != nil {
		body.InvokedBy = d.invoker.node.ID
		u.parent = &domain.ParentContext{
			Kind:   domain.ParentNode,
			Name:   d.invoker.node.ID,
			SpanID: d.invoker.span,
			Parent: x.self,
		}
	}

	x.active[u.span] = u
	x.emit(domain.NewEvent(domain.EventNodeInitiated, x.traceID, u.span, u.parent, body))
	x.logger.Debug("node initiated", "node", u.node.ID, "span_id", u.span)
	go x.execute(u)
}

func (x *execution) handle(m message) {
	u := m.unit
	if _, ok := x.active[u.span]; !ok {
		// Late message from a cancelled unit.
		return
	}
	switch m.kind {
	case msgStream:
		x.onStream(u, m)
	case msgFulfilled:
		x.onFulfilled(u, m)
	case msgRejected:
		x.reject(u, m.err, m.stack)
	}
}

func (x *execution) onStream(u *unit, m message) {
	x.emit(domain.NewEvent(domain.EventNodeStreaming, x.traceID, u.span, u.parent, domain.NodeStreamingBody{
		Node:   u.node.ID,
		Output: m.output,
		Delta:  m.delta,
		Done:   m.done,
	}))

	if !m.done {
		for _, name := range x.r.streamed[domain.OutputKey(u.node.ID, m.output)] {
			x.emit(domain.NewEvent(domain.EventWorkflowStreaming, x.traceID, x.spanID, x.parent,
				domain.WorkflowStreamingBody{Output: name, State: domain.StreamStreaming, Delta: m.delta}))
		}
		return
	}

	u.streamed[m.output] = m.delta
	if err := u.st.Set(domain.OutputKey(u.node.ID, m.output), m.delta); err != nil {
		x.reject(u, x.internalError("failed to commit streamed output", err), "")
		return
	}
	x.pipe.snapshot(u.st.Snapshot())
	x.streamOutputs(u.st)

	ports, err := u.route(false)
	if err != nil {
		x.reject(u, err, "")
		return
	}
	for _, p := range ports {
		x.invoke(u, p)
		if x.rejected != nil {
			return
		}
	}
}

func (x *execution) onFulfilled(u *unit, m message) {
	outputs := domain.Outputs{}
	for k, v := range u.streamed {
		outputs[k] = v
	}
	for k, v := range m.outputs {
		outputs[k] = v
	}

	if err := u.node.Outputs.Validate(outputs); err != nil {
		x.reject(u, domain.NewError(domain.CodeInvalidOutputs, "node %s: %v", u.node.ID, err), "")
		return
	}

	err := u.st.Update(func(tx *state.Tx) error {
		for _, name := range sortedNames(outputs) {
			if err := tx.Set(domain.OutputKey(u.node.ID, name), outputs[name]); err != nil {
				return err
			}
		}
		tx.MarkFulfilled(u.node.ID)
		return nil
	})
	if err != nil {
		x.reject(u, x.internalError("failed to commit node outputs", err), "")
		return
	}
	x.pipe.snapshot(u.st.Snapshot())

	early := u.invokedPorts()
	ports, rerr := u.route(true)
	if rerr != nil {
		x.reject(u, rerr, "")
		return
	}

	x.emit(domain.NewEvent(domain.EventNodeFulfilled, x.traceID, u.span, u.parent, domain.NodeFulfilledBody{
		Node:         u.node.ID,
		Outputs:      outputs,
		InvokedPorts: u.invokedNames(),
		Mocked:       m.mocked,
	}))
	x.logger.Debug("node fulfilled", "node", u.node.ID, "span_id", u.span, "mocked", m.mocked)
	x.streamOutputs(u.st)
	x.release(u)

	for _, p := range ports {
		x.invoke(u, p)
		if x.rejected != nil {
			return
		}
	}
	// Successors of ports taken while streaming may be waiting on this
	// node's fulfilment (AwaitAll); the cache keeps the retry idempotent.
	for _, p := range early {
		if p.Fork {
			continue
		}
		for _, next := range x.g.Successors(p) {
			x.offer(u, next, u.st)
			if x.rejected != nil {
				return
			}
		}
	}
	x.drainQueue()
}

// invoke dispatches the successors of a port taken by u. Fork ports give
// every edge its own copy of the state.
func (x *execution) invoke(u *unit, p *graph.Port) {
	for _, next := range x.g.Successors(p) {
		st := u.st
		if p.Fork {
			st = u.st.Fork()
			x.states = append(x.states, st)
		}
		x.offer(u, next, st)
		if x.rejected != nil {
			return
		}
	}
}

func (x *execution) offer(u *unit, n *graph.Node, st *state.State) {
	ok, pending, err := x.r.gate.Ready(n, st, u.span, false)
	if err != nil {
		x.reject(u, asWorkflowError(err), "")
		return
	}
	x.addPending(pending)
	if ok {
		x.dispatch(dispatch{node: n, st: st, invoker: u})
	}
}

func (x *execution) release(u *unit) {
	delete(x.active, u.span)
	u.cancel()
}

// reject fails u (when it is still active) and then the whole run.
func (x *execution) reject(u *unit, err *domain.WorkflowError, stack string) {
	if u != nil {
		if _, ok := x.active[u.span]; ok {
			x.emit(domain.NewEvent(domain.EventNodeRejected, x.traceID, u.span, u.parent, domain.NodeRejectedBody{
				Node:       u.node.ID,
				Error:      err,
				Stacktrace: stack,
			}))
			x.logger.Warn("node rejected", "node", u.node.ID, "span_id", u.span, "err", err)
			x.release(u)
		}
	}
	x.abort(err)
}

// abort rejects the run: every active unit is cancelled in start order and the
// pending queue is dropped.
func (x *execution) abort(err *domain.WorkflowError) {
	if x.rejected != nil {
		return
	}
	x.rejected = err

	units := make([]*unit, 0, len(x.active))
	for _, u := range x.active {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].seq < units[j].seq })
	for _, u := range units {
		x.emit(domain.NewEvent(domain.EventNodeRejected, x.traceID, u.span, u.parent, domain.NodeRejectedBody{
			Node:  u.node.ID,
			Error: domain.NewError(domain.CodeNodeCancelled, "node %s was cancelled", u.node.ID),
		}))
		x.release(u)
	}
	x.queue = nil
}

func (x *execution) addPending(keys []domain.Key) {
	for _, k := range keys {
		found := false
		for _, p := range x.pending {
			if p == k {
				found = true
				break
			}
		}
		if !found {
			x.pending = append(x.pending, k)
		}
	}
}

func (x *execution) emit(ev *domain.Event) {
	x.stream.events <- ev
	x.pipe.event(ev)
}

// safely turns a panic in runtime code into an INTERNAL_ERROR rejection.
func (x *execution) safely(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			x.logger.Error("runtime panicked", "panic", rec)
			x.abort(domain.NewError(domain.CodeInternal, domain.GenericInternalMessage))
		}
	}()
	fn()
}

func (x *execution) internalError(msg string, err error) *domain.WorkflowError {
	x.logger.Error(msg, "err", err)
	return domain.NewError(domain.CodeInternal, domain.GenericInternalMessage)
}

func asWorkflowError(err error) *domain.WorkflowError {
	if we, ok := domain.AsWorkflowError(err); ok {
		return we
	}
	return domain.WrapError(domain.CodeInternal, err)
}
