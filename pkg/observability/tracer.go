package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/arbor/pkg/domain"
)

// Tracer exports runs as OpenTelemetry spans: one span per run, with a child
// span per node execution. A node span is parented to the span of the node
// that invoked it when known, and to the run span otherwise.
type Tracer struct {
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[string]*tracedRun
}

type tracedRun struct {
	span  trace.Span
	nodes map[string]trace.Span
	// contexts outlive node spans so late children can still link to them.
	contexts map[string]trace.SpanContext
}

// NewTracer creates a tracing emitter on top of t.
func NewTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t, runs: make(map[string]*tracedRun)}
}

func (t *Tracer) SnapshotState(context.Context, *domain.Snapshot) error { return nil }

func (t *Tracer) EmitEvent(_ context.Context, ev *domain.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch body := ev.Body.(type) {
	case domain.WorkflowInitiatedBody:
		t.startRun(ev, body)
	case domain.WorkflowStreamingBody:
		if run := t.runs[ev.SpanID]; run != nil {
			run.span.AddEvent("output."+string(body.State), trace.WithTimestamp(ev.Timestamp),
				trace.WithAttributes(attribute.String("output.name", body.Output)))
		}
	case domain.WorkflowFulfilledBody:
		t.endRun(ev, codes.Ok, "")
	case domain.WorkflowPausedBody:
		if run := t.runs[ev.SpanID]; run != nil {
			keys := make([]string, len(body.ExternalInputs))
			for i, k := range body.ExternalInputs {
				keys[i] = k.String()
			}
			run.span.SetAttributes(attribute.StringSlice("workflow.pending", keys))
		}
		t.endRun(ev, codes.Unset, "")
	case domain.WorkflowRejectedBody:
		msg := ""
		if body.Error != nil {
			msg = body.Error.Error()
		}
		t.endRun(ev, codes.Error, msg)
	case domain.NodeInitiatedBody:
		t.startNode(ev, body)
	case domain.NodeStreamingBody:
		if span := t.node(ev); span != nil {
			span.AddEvent("stream", trace.WithTimestamp(ev.Timestamp), trace.WithAttributes(
				attribute.String("output.name", body.Output),
				attribute.Bool("stream.done", body.Done),
			))
		}
	case domain.NodeFulfilledBody:
		if span := t.node(ev); span != nil {
			span.SetAttributes(
				attribute.StringSlice("node.invoked_ports", body.InvokedPorts),
				attribute.Bool("node.mocked", body.Mocked),
			)
			span.SetStatus(codes.Ok, "")
			t.endNode(ev)
		}
	case domain.NodeRejectedBody:
		if span := t.node(ev); span != nil {
			if body.Error != nil {
				span.RecordError(body.Error, trace.WithTimestamp(ev.Timestamp))
				span.SetAttributes(attribute.String("error.code", string(body.Error.Code)))
				span.SetStatus(codes.Error, body.Error.Message)
			}
			t.endNode(ev)
		}
	}
	return nil
}

func (t *Tracer) startRun(ev *domain.Event, body domain.WorkflowInitiatedBody) {
	attrs := []attribute.KeyValue{
		attribute.String("workflow.name", body.Workflow),
		attribute.String("workflow.span_id", ev.SpanID),
		attribute.String("workflow.trace_id", ev.TraceID),
		attribute.Bool("workflow.resumed", ev.Name == domain.EventWorkflowResumed),
	}
	if body.Trigger != "" {
		attrs = append(attrs, attribute.String("workflow.trigger", body.Trigger))
	}
	_, span := t.tracer.Start(context.Background(), fmt.Sprintf("workflow.run: %s", body.Workflow),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(ev.Timestamp),
		trace.WithAttributes(attrs...),
	)
	t.runs[ev.SpanID] = &tracedRun{
		span:     span,
		nodes:    make(map[string]trace.Span),
		contexts: make(map[string]trace.SpanContext),
	}
}

func (t *Tracer) endRun(ev *domain.Event, code codes.Code, msg string) {
	run := t.runs[ev.SpanID]
	if run == nil {
		return
	}
	for _, span := range run.nodes {
		span.End(trace.WithTimestamp(ev.Timestamp))
	}
	run.span.SetStatus(code, msg)
	run.span.End(trace.WithTimestamp(ev.Timestamp))
	delete(t.runs, ev.SpanID)
}

func (t *Tracer) startNode(ev *domain.Event, body domain.NodeInitiatedBody) {
	run := t.runOf(ev)
	if run == nil {
		return
	}
	parent := run.span.SpanContext()
	if ev.Parent != nil && ev.Parent.Kind == domain.ParentNode {
		if sc, ok := run.contexts[ev.Parent.SpanID]; ok {
			parent = sc
		}
	}
	ctx := trace.ContextWithSpanContext(context.Background(), parent)
	attrs := []attribute.KeyValue{
		attribute.String("node.id", body.Node),
		attribute.String("node.span_id", ev.SpanID),
	}
	if body.InvokedBy != "" {
		attrs = append(attrs, attribute.String("node.invoked_by", body.InvokedBy))
	}
	_, span := t.tracer.Start(ctx, fmt.Sprintf("node: %s", body.Node),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(ev.Timestamp),
		trace.WithAttributes(attrs...),
	)
	run.nodes[ev.SpanID] = span
	run.contexts[ev.SpanID] = span.SpanContext()
}

func (t *Tracer) node(ev *domain.Event) trace.Span {
	if run := t.runOf(ev); run != nil {
		return run.nodes[ev.SpanID]
	}
	return nil
}

func (t *Tracer) endNode(ev *domain.Event) {
	run := t.runOf(ev)
	if run == nil {
		return
	}
	if span, ok := run.nodes[ev.SpanID]; ok {
		span.End(trace.WithTimestamp(ev.Timestamp))
		delete(run.nodes, ev.SpanID)
	}
}

// runOf finds the run of a node event through its parent chain.
func (t *Tracer) runOf(ev *domain.Event) *tracedRun {
	for p := ev.Parent; p != nil; p = p.Parent {
		if p.Kind == domain.ParentWorkflow {
			return t.runs[p.SpanID]
		}
	}
	return nil
}
