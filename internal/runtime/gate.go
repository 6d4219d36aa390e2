package runtime

import (
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/state"
)

// Gate decides whether an invoked node may execute.
type Gate struct {
	g *graph.Graph

	mu    sync.Mutex
	preds map[string][]string
}

// NewGate creates a gate over g.
func NewGate(g *graph.Graph) *Gate {
	return &Gate{g: g, preds: make(map[string][]string)}
}

// Ready checks, in order: declared external inputs, the node's merge
// behaviour and the execution cache entry for (node, invokingSpan). When
// external inputs are missing they are returned as pending. A true result
// has already recorded the dispatch in the cache.
//
// seed marks invocations by the run itself rather than by a predecessor;
// AwaitAll is not applied to them.
func (gt *Gate) Ready(n *graph.Node, st *state.State, invokingSpan string, seed bool) (bool, []domain.Key, error) {
	gt.mu.Lock()
	defer gt.mu.Unlock()

	var pending []domain.Key
	for _, name := range n.ExternalInputs {
		k := domain.ExternalKey(n.ID, name)
		if domain.IsUndefined(st.Get(k)) {
			pending = append(pending, k)
		}
	}
	if len(pending) > 0 {
		return false, pending, nil
	}

	switch n.Merge {
	case graph.AwaitAll:
		if !seed {
			for _, dep := range gt.predecessors(n.ID) {
				if !st.Cache().FulfilledSince(dep, n.ID) {
					return false, nil, nil
				}
			}
		}
	case graph.AwaitAttributes:
		for _, d := range n.Requires {
			v, err := d.Resolve(st)
			if err != nil {
				return false, nil, domain.NewError(domain.CodeNodeExecution,
					"failed to evaluate requirements of %s: %v", n.ID, err)
			}
			if domain.IsUndefined(v) {
				return false, nil, nil
			}
		}
	}

	return st.Cache().TryInitiate(n.ID, invokingSpan), nil, nil
}

func (gt *Gate) predecessors(id string) []string {
	if p, ok := gt.preds[id]; ok {
		return p
	}
	p := gt.g.Predecessors(id)
	gt.preds[id] = p
	return p
}
