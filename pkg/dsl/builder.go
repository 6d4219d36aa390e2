package dsl

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Builder manages the graph construction.
type Builder struct {
	order    []string
	nodes    map[string]*NodeBuilder
	entries  []string
	triggers []triggerDecl
}

type triggerDecl struct {
	t   *domain.TriggerType
	ids []string
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    graph.NewNode(id, nil),
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Entry sets the nodes a run starts from. Without it, every node that no
// port routes to is an entrypoint.
func (b *Builder) Entry(ids ...string) *Builder {
	b.entries = append(b.entries, ids...)
	return b
}

// Trigger binds a trigger type to entrypoint nodes.
func (b *Builder) Trigger(t *domain.TriggerType, ids ...string) *Builder {
	b.triggers = append(b.triggers, triggerDecl{t: t, ids: ids})
	return b
}

// Build resolves every reference and returns the validated graph.
func (b *Builder) Build() (*graph.Graph, error) {
	if len(b.order) == 0 {
		return nil, fmt.Errorf("graph has no nodes")
	}

	targeted := make(map[string]bool)
	decl := graph.Set{}
	for _, id := range b.order {
		nb := b.nodes[id]
		decl = append(decl, nb.node)
		for _, r := range nb.routes {
			for _, target := range r.targets {
				to, ok := b.nodes[target]
				if !ok {
					return nil, fmt.Errorf("node %q: port %q routes to unknown node %q", id, r.port.Name, target)
				}
				targeted[target] = true
				edge, err := graph.Then(r.port, to.node)
				if err != nil {
					return nil, err
				}
				decl = append(decl, edge)
			}
		}
	}

	for _, td := range b.triggers {
		set := graph.Set{}
		for _, id := range td.ids {
			nb, ok := b.nodes[id]
			if !ok {
				return nil, fmt.Errorf("trigger %q binds unknown node %q", td.t, id)
			}
			set = append(set, nb.node)
		}
		bound, err := graph.Triggered(td.t, set)
		if err != nil {
			return nil, err
		}
		decl = append(decl, bound)
	}

	entries := b.entries
	if len(entries) == 0 {
		for _, id := range b.order {
			if !targeted[id] {
				entries = append(entries, id)
			}
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("graph has no entrypoint: every node is routed to")
	}
	roots := make([]*graph.Node, 0, len(entries))
	for _, id := range entries {
		nb, ok := b.nodes[id]
		if !ok {
			return nil, fmt.Errorf("unknown entrypoint %q", id)
		}
		roots = append(roots, nb.node)
	}

	g, err := graph.Rooted(decl, roots...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
