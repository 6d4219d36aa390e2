package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventName identifies a lifecycle transition.
type EventName string

const (
	EventWorkflowInitiated EventName = "workflow.execution.initiated"
	EventWorkflowResumed   EventName = "workflow.execution.resumed"
	EventWorkflowStreaming EventName = "workflow.execution.streaming"
	EventWorkflowFulfilled EventName = "workflow.execution.fulfilled"
	EventWorkflowRejected  EventName = "workflow.execution.rejected"
	EventWorkflowPaused    EventName = "workflow.execution.paused"

	EventNodeInitiated EventName = "node.execution.initiated"
	EventNodeStreaming EventName = "node.execution.streaming"
	EventNodeFulfilled EventName = "node.execution.fulfilled"
	EventNodeRejected  EventName = "node.execution.rejected"
)

// IsTerminal reports whether the event ends a workflow run.
func (n EventName) IsTerminal() bool {
	switch n {
	case EventWorkflowFulfilled, EventWorkflowRejected, EventWorkflowPaused:
		return true
	}
	return false
}

// IsWorkflow reports whether the event describes the run rather than a node.
func (n EventName) IsWorkflow() bool {
	return strings.HasPrefix(string(n), "workflow.")
}

// ParentKind tells what kind of span a ParentContext points at.
type ParentKind string

const (
	ParentWorkflow ParentKind = "workflow"
	ParentNode     ParentKind = "node"
	ParentExternal ParentKind = "external"
)

// ParentContext links a span to the span that caused it. Chains are finite
// and end in a nil Parent.
type ParentContext struct {
	Kind   ParentKind     `json:"kind"`
	Name   string         `json:"name,omitempty"`
	SpanID string         `json:"span_id"`
	Parent *ParentContext `json:"parent,omitempty"`
}

// Event is a single lifecycle notification.
type Event struct {
	ID        string         `json:"id"`
	Name      EventName      `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	Parent    *ParentContext `json:"parent,omitempty"`
	Body      any            `json:"body"`
}

// NewEvent stamps a new event with an ID and the current time.
func NewEvent(name EventName, traceID, spanID string, parent *ParentContext, body any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now(),
		TraceID:   traceID,
		SpanID:    spanID,
		Parent:    parent,
		Body:      body,
	}
}

// WorkflowInitiatedBody is carried by initiated and resumed events.
type WorkflowInitiatedBody struct {
	Workflow       string         `json:"workflow"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Trigger        string         `json:"trigger,omitempty"`
	ExternalInputs []string       `json:"external_inputs,omitempty"`
}

// StreamState tells whether a streamed workflow output is partial or final.
type StreamState string

const (
	StreamStreaming StreamState = "streaming"
	StreamFulfilled StreamState = "fulfilled"
)

type WorkflowStreamingBody struct {
	Output string      `json:"output"`
	State  StreamState `json:"state"`
	Delta  any         `json:"delta,omitempty"`
	Value  any         `json:"value,omitempty"`
}

type WorkflowFulfilledBody struct {
	Outputs map[string]any `json:"outputs"`
}

type WorkflowRejectedBody struct {
	Error *WorkflowError `json:"error"`
}

type WorkflowPausedBody struct {
	ExternalInputs []Key `json:"external_inputs"`
}

type NodeInitiatedBody struct {
	Node      string `json:"node"`
	InvokedBy string `json:"invoked_by,omitempty"`
}

type NodeStreamingBody struct {
	Node   string `json:"node"`
	Output string `json:"output"`
	Delta  any    `json:"delta,omitempty"`
	// Done marks the end of the stream; Delta then holds the complete value.
	Done bool `json:"done,omitempty"`
}

type NodeFulfilledBody struct {
	Node         string   `json:"node"`
	Outputs      Outputs  `json:"outputs"`
	InvokedPorts []string `json:"invoked_ports,omitempty"`
	Mocked       bool     `json:"mocked,omitempty"`
}

type NodeRejectedBody struct {
	Node       string         `json:"node"`
	Error      *WorkflowError `json:"error"`
	Stacktrace string         `json:"stacktrace,omitempty"`
}
