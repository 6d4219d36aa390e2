package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// ErrUnsupportedDeclaration is returned by Resolve for values that are not a
// node, port, graph or set of those.
var ErrUnsupportedDeclaration = errors.New("unsupported graph declaration")

// Set groups declarations that run side by side.
type Set []any

// Edge connects a port to the node it invokes.
type Edge struct {
	From *Port
	To   *Node
}

// TriggerBinding associates a trigger type with the entrypoints it activates.
type TriggerBinding struct {
	Type        *domain.TriggerType
	Entrypoints []*Node
}

// Graph is an immutable, resolved view of a workflow topology.
type Graph struct {
	nodes       []*Node
	edges       []Edge
	entrypoints []*Node
	terminals   []*Port
	triggers    []TriggerBinding

	index     map[string]*Node
	conflicts []string
}

func newGraph() *Graph {
	return &Graph{index: make(map[string]*Node)}
}

// Resolve flattens a declaration into a graph. Accepted shapes are *Node,
// *Port, *Graph, Set and []any, nested arbitrarily.
func Resolve(decl any) (*Graph, error) {
	switch d := decl.(type) {
	case *Graph:
		if d == nil {
			return nil, fmt.Errorf("%w: nil graph", ErrUnsupportedDeclaration)
		}
		return d, nil
	case *Node:
		if d == nil {
			return nil, fmt.Errorf("%w: nil node", ErrUnsupportedDeclaration)
		}
		g := newGraph()
		g.addNode(d)
		g.entrypoints = []*Node{d}
		g.terminals = d.Ports()
		return g, nil
	case *Port:
		if d == nil || d.node == nil {
			return nil, fmt.Errorf("%w: port is not attached to a node", ErrUnsupportedDeclaration)
		}
		g := newGraph()
		g.addNode(d.node)
		g.entrypoints = []*Node{d.node}
		g.terminals = []*Port{d}
		return g, nil
	case Set:
		return resolveAll([]any(d))
	case []any:
		return resolveAll(d)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDeclaration, decl)
	}
}

func resolveAll(decls []any) (*Graph, error) {
	out := newGraph()
	for _, decl := range decls {
		g, err := Resolve(decl)
		if err != nil {
			return nil, err
		}
		out.absorb(g)
		out.entrypoints = appendNodes(out.entrypoints, g.entrypoints...)
		out.terminals = appendPorts(out.terminals, g.terminals...)
	}
	return out, nil
}

// Parallel is shorthand for Resolve(Set{decls...}).
func Parallel(decls ...any) (*Graph, error) {
	return Resolve(Set(decls))
}

// Then connects every terminal port of from to every entrypoint of to.
// The result starts where from starts and ends where to ends.
func Then(from, to any) (*Graph, error) {
	gf, err := Resolve(from)
	if err != nil {
		return nil, err
	}
	gt, err := Resolve(to)
	if err != nil {
		return nil, err
	}

	out := newGraph()
	out.absorb(gf)
	out.absorb(gt)
	for _, p := range gf.terminals {
		for _, n := range gt.entrypoints {
			out.addEdge(Edge{From: p, To: n})
		}
	}
	out.entrypoints = appendNodes(nil, gf.entrypoints...)
	out.terminals = appendPorts(nil, gt.terminals...)
	return out, nil
}

// Chain folds Then over the declarations from left to right.
func Chain(decls ...any) (*Graph, error) {
	if len(decls) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrUnsupportedDeclaration)
	}
	g, err := Resolve(decls[0])
	if err != nil {
		return nil, err
	}
	for _, next := range decls[1:] {
		if g, err = Then(g, next); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Triggered binds a trigger type to the entrypoints of decl.
func Triggered(t *domain.TriggerType, decl any) (*Graph, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil trigger type", ErrUnsupportedDeclaration)
	}
	g, err := Resolve(decl)
	if err != nil {
		return nil, err
	}
	out := newGraph()
	out.absorb(g)
	out.entrypoints = appendNodes(nil, g.entrypoints...)
	out.terminals = appendPorts(nil, g.terminals...)
	out.bindTrigger(t, g.entrypoints)
	return out, nil
}

// Rooted resolves decl and starts it from the given nodes instead of the
// entrypoints implied by its shape. Every node must be part of decl.
func Rooted(decl any, entrypoints ...*Node) (*Graph, error) {
	g, err := Resolve(decl)
	if err != nil {
		return nil, err
	}
	out := newGraph()
	out.absorb(g)
	for _, n := range entrypoints {
		if n == nil || out.index[n.ID] != n {
			return nil, fmt.Errorf("%w: entrypoint %v is not part of the graph", ErrUnsupportedDeclaration, n)
		}
	}
	out.entrypoints = appendNodes(nil, entrypoints...)
	out.terminals = appendPorts(nil, g.terminals...)
	return out, nil
}

// Must panics if err is non-nil. It wraps calls such as Chain or Then in
// package-level workflow declarations.
func Must(g *Graph, err error) *Graph {
	if err != nil {
		panic(err)
	}
	return g
}

// Validate checks structural invariants: node IDs are unique, conditional
// ports form well-ordered chains, and no node routes exclusively to itself.
func (g *Graph) Validate() error {
	if len(g.conflicts) > 0 {
		return domain.NewError(domain.CodeInvalidWorkflow, "duplicate node id(s): %v", g.conflicts)
	}

	for _, n := range g.nodes {
		if err := validatePortChain(n); err != nil {
			return err
		}

		ports := n.Ports()
		selfOnly := len(ports) > 0
		for _, p := range ports {
			targets := g.Successors(p)
			if len(targets) == 0 {
				selfOnly = false
				break
			}
			for _, t := range targets {
				if t != n {
					selfOnly = false
					break
				}
			}
			if !selfOnly {
				break
			}
		}
		if selfOnly {
			return domain.NewError(domain.CodeInvalidWorkflow,
				"node %q routes every port back to itself, which would loop forever", n.ID)
		}
	}
	return nil
}

func validatePortChain(n *Node) error {
	open := false
	for _, p := range n.Ports() {
		switch p.Kind {
		case PortIf:
			open = true
		case PortElseIf:
			if !open {
				return domain.NewError(domain.CodeInvalidWorkflow, "port %s: elif without a preceding if", p)
			}
		case PortElse:
			if !open {
				return domain.NewError(domain.CodeInvalidWorkflow, "port %s: else without a preceding if", p)
			}
			open = false
		}
		if (p.Kind == PortIf || p.Kind == PortElseIf) && p.Condition == nil {
			return domain.NewError(domain.CodeInvalidWorkflow, "port %s: conditional port without a condition", p)
		}
	}
	return nil
}

// Nodes returns every node in first-seen order.
func (g *Graph) Nodes() []*Node { return append([]*Node(nil), g.nodes...) }

// Edges returns every edge in first-seen order.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Entrypoints returns the nodes a run starts from, in first-seen order.
func (g *Graph) Entrypoints() []*Node { return append([]*Node(nil), g.entrypoints...) }

// Terminals returns the ports that a subsequent Then would connect.
func (g *Graph) Terminals() []*Port { return append([]*Port(nil), g.terminals...) }

// Triggers returns the trigger bindings in declaration order.
func (g *Graph) Triggers() []TriggerBinding {
	out := make([]TriggerBinding, len(g.triggers))
	for i, b := range g.triggers {
		out[i] = TriggerBinding{Type: b.Type, Entrypoints: append([]*Node(nil), b.Entrypoints...)}
	}
	return out
}

// TriggerNames lists the declared trigger type names, sorted.
func (g *Graph) TriggerNames() []string {
	names := make([]string, 0, len(g.triggers))
	for _, b := range g.triggers {
		names = append(names, b.Type.Name)
	}
	sort.Strings(names)
	return names
}

// UntriggeredEntrypoints returns entrypoints not bound to any trigger.
func (g *Graph) UntriggeredEntrypoints() []*Node {
	bound := make(map[*Node]struct{})
	for _, b := range g.triggers {
		for _, n := range b.Entrypoints {
			bound[n] = struct{}{}
		}
	}
	var out []*Node
	for _, n := range g.entrypoints {
		if _, ok := bound[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Node looks a node up by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

// Successors returns the targets of p's edges, in first-seen order.
func (g *Graph) Successors(p *Port) []*Node {
	var out []*Node
	for _, e := range g.edges {
		if e.From == p {
			out = append(out, e.To)
		}
	}
	return out
}

// Predecessors returns the IDs of nodes with an edge into id, sorted.
func (g *Graph) Predecessors(id string) []string {
	seen := make(map[string]struct{})
	for _, e := range g.edges {
		if e.To.ID == id {
			seen[e.From.node.ID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// NodesAwaiting returns the nodes that declare the given external input keys.
func (g *Graph) NodesAwaiting(keys []domain.Key) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		for _, name := range n.ExternalInputs {
			if containsKey(keys, domain.ExternalKey(n.ID, name)) {
				out = appendNodes(out, n)
				break
			}
		}
	}
	return out
}

func (g *Graph) absorb(other *Graph) {
	for _, n := range other.nodes {
		g.addNode(n)
	}
	for _, e := range other.edges {
		g.addEdge(e)
	}
	for _, b := range other.triggers {
		g.bindTrigger(b.Type, b.Entrypoints)
	}
	for _, c := range other.conflicts {
		if !containsString(g.conflicts, c) {
			g.conflicts = append(g.conflicts, c)
		}
	}
}

func (g *Graph) addNode(n *Node) {
	if existing, ok := g.index[n.ID]; ok {
		if existing != n && !containsString(g.conflicts, n.ID) {
			g.conflicts = append(g.conflicts, n.ID)
		}
		return
	}
	g.index[n.ID] = n
	g.nodes = append(g.nodes, n)
}

func (g *Graph) addEdge(e Edge) {
	for _, existing := range g.edges {
		if existing.From == e.From && existing.To == e.To {
			return
		}
	}
	g.addNode(e.From.node)
	g.addNode(e.To)
	g.edges = append(g.edges, e)
}

func (g *Graph) bindTrigger(t *domain.TriggerType, entrypoints []*Node) {
	for i := range g.triggers {
		if g.triggers[i].Type == t {
			g.triggers[i].Entrypoints = appendNodes(g.triggers[i].Entrypoints, entrypoints...)
			return
		}
	}
	g.triggers = append(g.triggers, TriggerBinding{Type: t, Entrypoints: appendNodes(nil, entrypoints...)})
}

func appendNodes(dst []*Node, nodes ...*Node) []*Node {
	for _, n := range nodes {
		found := false
		for _, d := range dst {
			if d == n {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, n)
		}
	}
	return dst
}

func appendPorts(dst []*Port, ports ...*Port) []*Port {
	for _, p := range ports {
		found := false
		for _, d := range dst {
			if d == p {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, p)
		}
	}
	return dst
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsKey(list []domain.Key, k domain.Key) bool {
	for _, v := range list {
		if v == k {
			return true
		}
	}
	return false
}
