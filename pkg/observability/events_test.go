package observability_test

import (
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// runEvents fabricates the events of a run where A fulfils and invokes B,
// which is rejected.
func runEvents() []*domain.Event {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	self := &domain.ParentContext{Kind: domain.ParentWorkflow, Name: "demo", SpanID: "wf"}
	viaA := &domain.ParentContext{Kind: domain.ParentNode, Name: "A", SpanID: "a", Parent: self}

	at := func(ev *domain.Event, d time.Duration) *domain.Event {
		ev.Timestamp = t0.Add(d)
		return ev
	}
	return []*domain.Event{
		at(domain.NewEvent(domain.EventWorkflowInitiated, "trace", "wf", nil,
			domain.WorkflowInitiatedBody{Workflow: "demo"}), 0),
		at(domain.NewEvent(domain.EventNodeInitiated, "trace", "a", self,
			domain.NodeInitiatedBody{Node: "A"}), time.Millisecond),
		at(domain.NewEvent(domain.EventNodeStreaming, "trace", "a", self,
			domain.NodeStreamingBody{Node: "A", Output: "text", Delta: "hi"}), 2*time.Millisecond),
		at(domain.NewEvent(domain.EventNodeFulfilled, "trace", "a", self,
			domain.NodeFulfilledBody{Node: "A", InvokedPorts: []string{"default"}}), 500*time.Millisecond),
		at(domain.NewEvent(domain.EventNodeInitiated, "trace", "b", viaA,
			domain.NodeInitiatedBody{Node: "B", InvokedBy: "A"}), 501*time.Millisecond),
		at(domain.NewEvent(domain.EventNodeRejected, "trace", "b", viaA,
			domain.NodeRejectedBody{Node: "B", Error: domain.NewError(domain.CodeNodeExecution, "boom")}), 600*time.Millisecond),
		at(domain.NewEvent(domain.EventWorkflowRejected, "trace", "wf", nil,
			domain.WorkflowRejectedBody{Error: domain.NewError(domain.CodeNodeExecution, "boom")}), 601*time.Millisecond),
	}
}
