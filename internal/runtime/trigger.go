package runtime

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/state"
)

// Bind selects the entrypoints activated by t and copies its attributes into
// the trigger namespace of st. A nil t stands for a manual start.
func Bind(g *graph.Graph, t *domain.Trigger, st *state.State) ([]*graph.Node, error) {
	eps, err := bindEntrypoints(g, t)
	if err != nil {
		return nil, err
	}
	if t != nil && len(t.Attributes) > 0 {
		st.BindTrigger(t.Attributes)
	}
	return eps, nil
}

func bindEntrypoints(g *graph.Graph, t *domain.Trigger) ([]*graph.Node, error) {
	bindings := g.Triggers()

	if len(bindings) == 0 {
		if t != nil && !t.Type.Is(domain.ManualTrigger) {
			return nil, domain.NewError(domain.CodeInvalidInputs,
				"trigger %q is not accepted: workflow only supports manual starts", t.Type)
		}
		return g.Entrypoints(), nil
	}

	manual := t == nil || t.Type.Is(domain.ManualTrigger)
	selected := make(map[*graph.Node]struct{})
	if manual {
		for _, n := range g.UntriggeredEntrypoints() {
			selected[n] = struct{}{}
		}
	}
	for _, b := range bindings {
		compatible := false
		if t == nil {
			compatible = b.Type == domain.ManualTrigger
		} else {
			compatible = t.Type.Is(b.Type)
		}
		if !compatible {
			continue
		}
		for _, n := range b.Entrypoints {
			selected[n] = struct{}{}
		}
	}

	if len(selected) == 0 {
		if t == nil {
			return nil, domain.NewError(domain.CodeInvalidInputs,
				"a trigger is required, accepted triggers: %v", g.TriggerNames())
		}
		return nil, domain.NewError(domain.CodeInvalidInputs,
			"trigger %q is not accepted, accepted triggers: %v", t.Type, g.TriggerNames())
	}

	var out []*graph.Node
	for _, n := range g.Entrypoints() {
		if _, ok := selected[n]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}
