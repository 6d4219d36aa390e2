package runtime

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/state"
)

// prepare builds the initial state of a run and picks its entrypoints.
// Nothing is executed or emitted yet.
func (r *Runner) prepare(ctx context.Context, req Request) (*execution, error) {
	executionID := uuid.NewString()
	spanID := uuid.NewString()
	meta := state.Meta{
		ExecutionID: executionID,
		Workflow:    r.opts.Name,
		TraceID:     uuid.NewString(),
		SpanID:      spanID,
	}

	st, resumed, err := r.initialState(ctx, req, meta)
	if err != nil {
		return nil, err
	}

	if !resumed {
		if err := r.opts.InputsSchema.Validate(req.Inputs); err != nil {
			return nil, domain.WrapError(domain.CodeInvalidInputs, err)
		}
	}
	if len(req.Inputs) > 0 {
		err := st.Update(func(tx *state.Tx) error {
			for _, name := range sortedNames(req.Inputs) {
				if err := tx.Set(domain.InputKey(name), req.Inputs[name]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, domain.WrapError(domain.CodeInvalidInputs, err)
		}
	}

	supplied, err := applyExternalInputs(st, req.ExternalInputs)
	if err != nil {
		return nil, err
	}
	if len(supplied) > 0 {
		resumed = true
	}

	entrypoints, err := r.entrypoints(req, st, supplied)
	if err != nil {
		return nil, err
	}

	return newExecution(r, req, st, entrypoints, resumed), nil
}

// initialState returns the state the run starts from and whether it continues
// an earlier run.
func (r *Runner) initialState(ctx context.Context, req Request, meta state.Meta) (*state.State, bool, error) {
	switch {
	case req.PreviousExecutionID != "":
		resolved, err := r.resolve(ctx, req.PreviousExecutionID)
		if err != nil {
			return nil, false, err
		}
		st, err := state.FromSnapshot(resolved.Snapshot)
		if err != nil {
			return nil, false, domain.WrapError(domain.CodeInvalidInputs, err)
		}
		if resolved.TraceID != "" {
			meta.TraceID = resolved.TraceID
		}
		meta.Parent = &domain.ParentContext{
			Kind:   domain.ParentWorkflow,
			Name:   r.opts.Name,
			SpanID: resolved.SpanID,
		}
		st.SetMeta(meta)
		return st, true, nil

	case req.State != nil:
		st := req.State
		if prev := st.Meta(); prev.TraceID != "" {
			meta.TraceID = prev.TraceID
		}
		st.SetMeta(meta)
		return st, true, nil

	case req.Snapshot != nil:
		st, err := state.FromSnapshot(req.Snapshot)
		if err != nil {
			return nil, false, domain.WrapError(domain.CodeInvalidInputs, err)
		}
		if req.Snapshot.TraceID != "" {
			meta.TraceID = req.Snapshot.TraceID
		}
		if req.Snapshot.SpanID != "" {
			meta.Parent = &domain.ParentContext{
				Kind:   domain.ParentWorkflow,
				Name:   r.opts.Name,
				SpanID: req.Snapshot.SpanID,
			}
		}
		st.SetMeta(meta)
		return st, true, nil

	default:
		return state.New(meta), false, nil
	}
}

// resolve asks every resolver in order; the first state found wins.
func (r *Runner) resolve(ctx context.Context, executionID string) (*ports.ResolvedState, error) {
	var errs []error
	for _, res := range r.opts.Resolvers {
		resolved, err := res.LoadState(ctx, executionID)
		if err != nil {
			r.logger.Warn("resolver failed", "execution_id", executionID, "err", err)
			errs = append(errs, err)
			continue
		}
		if resolved != nil && resolved.Snapshot != nil {
			return resolved, nil
		}
	}
	if len(errs) > 0 {
		return nil, domain.NewError(domain.CodeInvalidInputs,
			"could not load state of execution %q: %v", executionID, errs)
	}
	return nil, domain.NewError(domain.CodeInvalidInputs, "could not load state of execution %q", executionID)
}

func applyExternalInputs(st *state.State, inputs map[domain.Key]any) ([]domain.Key, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	keys := make([]domain.Key, 0, len(inputs))
	for k := range inputs {
		if k.Space != domain.NamespaceExternal {
			return nil, domain.NewError(domain.CodeInvalidInputs, "%s is not an external input", k)
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	err := st.Update(func(tx *state.Tx) error {
		for _, k := range keys {
			if err := tx.Set(k, inputs[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.CodeInvalidInputs, err)
	}
	return keys, nil
}

// entrypoints applies the precedence: explicit entrypoints, then the nodes
// awaiting supplied external inputs, then trigger binding.
func (r *Runner) entrypoints(req Request, st *state.State, supplied []domain.Key) ([]*graph.Node, error) {
	g := r.opts.Graph

	if len(req.Entrypoints) > 0 {
		if req.Trigger != nil {
			if _, err := Bind(g, req.Trigger, st); err != nil {
				return nil, err
			}
		}
		out := make([]*graph.Node, 0, len(req.Entrypoints))
		for _, id := range req.Entrypoints {
			n, ok := g.Node(id)
			if !ok {
				return nil, domain.NewError(domain.CodeInvalidInputs, "unknown entrypoint %q", id)
			}
			out = append(out, n)
		}
		return out, nil
	}

	if len(supplied) > 0 {
		out := g.NodesAwaiting(supplied)
		if len(out) == 0 {
			return nil, domain.NewError(domain.CodeInvalidInputs,
				"no node awaits external inputs %v", keyStrings(supplied))
		}
		return out, nil
	}

	return Bind(g, req.Trigger, st)
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func keyStrings(keys []domain.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
