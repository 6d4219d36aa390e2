package runtime

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/state"
)

// streamOutputs re-resolves the workflow outputs against r and streams the
// values that changed since the previous call.
func (x *execution) streamOutputs(r domain.Reader) {
	outputs := x.r.opts.Outputs
	if len(outputs) == 0 {
		return
	}

	current := make(map[string]any, len(outputs))
	for _, o := range outputs {
		v, err := o.Value.Resolve(r)
		if err != nil {
			continue
		}
		current[o.Name] = v
	}

	diff := domain.DiffValues(x.lastOutputs, current)
	if diff == nil || len(diff.Changed) == 0 {
		return
	}
	for _, o := range outputs {
		v, ok := diff.Changed[o.Name]
		if !ok {
			continue
		}
		x.emit(domain.NewEvent(domain.EventWorkflowStreaming, x.traceID, x.spanID, x.parent,
			domain.WorkflowStreamingBody{Output: o.Name, State: domain.StreamFulfilled, Value: v}))
	}
	x.lastOutputs = current
}

// resolveOutputs evaluates every workflow output; undefined ones are omitted.
func (x *execution) resolveOutputs(r domain.Reader) (map[string]any, *domain.WorkflowError) {
	out := make(map[string]any, len(x.r.opts.Outputs))
	for _, o := range x.r.opts.Outputs {
		v, err := o.Value.Resolve(r)
		if err != nil {
			return nil, domain.NewError(domain.CodeInvalidOutputs, "failed to resolve output %q: %v", o.Name, err)
		}
		if domain.IsUndefined(v) {
			continue
		}
		out[o.Name] = v
	}
	return out, nil
}

// finish merges the forks, decides the terminal status, flushes the emitters
// and closes the stream.
func (x *execution) finish() {
	merged := state.Merge(x.states...)
	res := &Result{ExecutionID: x.executionID}

	var terminal *domain.Event
	if x.rejected == nil {
		var pending []domain.Key
		for _, k := range x.pending {
			if domain.IsUndefined(merged.Get(k)) {
				pending = append(pending, k)
			}
		}

		if len(pending) > 0 {
			res.Status = domain.StatusPaused
			res.Pending = pending
			terminal = domain.NewEvent(domain.EventWorkflowPaused, x.traceID, x.spanID, x.parent,
				domain.WorkflowPausedBody{ExternalInputs: pending})
		} else if outputs, err := x.resolveOutputs(merged); err != nil {
			x.rejected = err
		} else {
			x.streamOutputs(merged)
			res.Status = domain.StatusFulfilled
			res.Outputs = outputs
			terminal = domain.NewEvent(domain.EventWorkflowFulfilled, x.traceID, x.spanID, x.parent,
				domain.WorkflowFulfilledBody{Outputs: outputs})
		}
	}
	if x.rejected != nil {
		res.Status = domain.StatusRejected
		res.Error = x.rejected
		terminal = domain.NewEvent(domain.EventWorkflowRejected, x.traceID, x.spanID, x.parent,
			domain.WorkflowRejectedBody{Error: x.rejected})
	}

	merged.SetStatus(res.Status, res.Pending)
	res.Snapshot = merged.Snapshot()
	x.pipe.snapshot(res.Snapshot)
	x.emit(terminal)

	switch res.Status {
	case domain.StatusRejected:
		x.logger.Warn("workflow rejected", "err", res.Error)
	case domain.StatusPaused:
		x.logger.Info("workflow paused", "pending", keyStrings(res.Pending))
	default:
		x.logger.Info("workflow fulfilled")
	}

	x.stopUnits()
	close(x.done)
	x.pipe.close()
	_ = x.group.Wait()

	x.stream.result = res
	close(x.stream.events)
	close(x.stream.done)
}
