package dsl

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/schema"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    *graph.Node
	builder *Builder
	routes  []*PortBuilder
}

// Run sets the node body.
func (n *NodeBuilder) Run(fn graph.RunFunc) *NodeBuilder {
	n.node.Run = fn
	return n
}

// Outputs sets the schema the node's outputs are validated against.
func (n *NodeBuilder) Outputs(s schema.Schema) *NodeBuilder {
	n.node.Outputs = s
	return n
}

// Await declares external inputs the node needs before it can run.
func (n *NodeBuilder) Await(names ...string) *NodeBuilder {
	n.node.ExternalInputs = append(n.node.ExternalInputs, names...)
	return n
}

// AwaitAll makes the node wait for every predecessor.
func (n *NodeBuilder) AwaitAll() *NodeBuilder {
	n.node.Merge = graph.AwaitAll
	return n
}

// AwaitAttributes makes the node wait until every descriptor is defined.
func (n *NodeBuilder) AwaitAttributes(required ...domain.Descriptor) *NodeBuilder {
	n.node.Merge = graph.AwaitAttributes
	n.node.Requires = append(n.node.Requires, required...)
	return n
}

// Go routes the node's default port to the targets.
func (n *NodeBuilder) Go(targets ...string) *NodeBuilder {
	return n.Always(graph.DefaultPort).Go(targets...)
}

// If opens a conditional chain with a port taken when cond is true.
func (n *NodeBuilder) If(name string, cond domain.Descriptor) *PortBuilder {
	return n.route(n.node.If(name, cond))
}

// ElseIf continues the current conditional chain.
func (n *NodeBuilder) ElseIf(name string, cond domain.Descriptor) *PortBuilder {
	return n.route(n.node.ElseIf(name, cond))
}

// Else closes the current conditional chain.
func (n *NodeBuilder) Else(name string) *PortBuilder {
	return n.route(n.node.Else(name))
}

// Always adds an unconditional port, or returns it if it was already added.
func (n *NodeBuilder) Always(name string) *PortBuilder {
	for _, r := range n.routes {
		if r.port.Name == name {
			return r
		}
	}
	return n.route(n.node.Always(name))
}

// Node returns the underlying graph node.
func (n *NodeBuilder) Node() *graph.Node {
	return n.node
}

func (n *NodeBuilder) route(p *graph.Port) *PortBuilder {
	pb := &PortBuilder{port: p, node: n}
	n.routes = append(n.routes, pb)
	return pb
}

// PortBuilder configures the edges of one port.
type PortBuilder struct {
	port    *graph.Port
	node    *NodeBuilder
	targets []string
}

// Fork gives every edge of the port its own copy of the run state.
func (p *PortBuilder) Fork() *PortBuilder {
	p.port.Forked()
	return p
}

// Go adds edges to the targets and returns the node for further chaining.
func (p *PortBuilder) Go(targets ...string) *NodeBuilder {
	p.targets = append(p.targets, targets...)
	return p.node
}

// Port returns the underlying graph port.
func (p *PortBuilder) Port() *graph.Port {
	return p.port
}
