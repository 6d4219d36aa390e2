package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

// RunFunc is the body of a node. It runs on its own goroutine and may block.
type RunFunc func(ctx context.Context, rc *RunContext) (domain.Outputs, error)

// MergeBehavior decides when a node with several predecessors becomes ready.
type MergeBehavior int

const (
	// AwaitAny runs the node once per invoking predecessor.
	AwaitAny MergeBehavior = iota
	// AwaitAll waits until every predecessor fulfilled since the node last ran.
	AwaitAll
	// AwaitAttributes waits until every Requires descriptor resolves to a defined value.
	AwaitAttributes
)

func (m MergeBehavior) String() string {
	switch m {
	case AwaitAll:
		return "await_all"
	case AwaitAttributes:
		return "await_attributes"
	default:
		return "await_any"
	}
}

// DefaultPort is the name of the port added to nodes that declare none.
const DefaultPort = "default"

// Node is a unit of work in a workflow graph.
type Node struct {
	ID  string
	Run RunFunc
	// Outputs validates the values the node produces. Nil disables validation.
	Outputs schema.Schema
	// ExternalInputs names values supplied from outside the run. The node
	// pauses the run until all of them are defined.
	ExternalInputs []string
	Merge          MergeBehavior
	// Requires is consulted by AwaitAttributes.
	Requires []domain.Descriptor

	mu    sync.Mutex
	ports []*Port
}

// NewNode creates a node. A nil run function produces empty outputs.
func NewNode(id string, run RunFunc) *Node {
	return &Node{ID: id, Run: run}
}

// If adds a port that is invoked when cond is true and opens a new
// if/else-if/else chain.
func (n *Node) If(name string, cond domain.Descriptor) *Port {
	return n.addPort(&Port{Name: name, Kind: PortIf, Condition: cond})
}

// ElseIf adds a port evaluated only when no earlier port of the chain matched.
func (n *Node) ElseIf(name string, cond domain.Descriptor) *Port {
	return n.addPort(&Port{Name: name, Kind: PortElseIf, Condition: cond})
}

// Else adds a port invoked when no earlier port of the chain matched. It
// closes the chain.
func (n *Node) Else(name string) *Port {
	return n.addPort(&Port{Name: name, Kind: PortElse})
}

// Always adds an unconditional port.
func (n *Node) Always(name string) *Port {
	return n.addPort(&Port{Name: name, Kind: PortAlways})
}

// Port returns the named port, or nil.
func (n *Node) Port(name string) *Port {
	for _, p := range n.Ports() {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Ports returns the ports in declaration order. A node without declared ports
// gets an unconditional DefaultPort.
func (n *Node) Ports() []*Port {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.ports) == 0 {
		n.ports = []*Port{{Name: DefaultPort, Kind: PortAlways, node: n}}
	}
	return append([]*Port(nil), n.ports...)
}

func (n *Node) addPort(p *Port) *Port {
	n.mu.Lock()
	defer n.mu.Unlock()
	p.node = n
	n.ports = append(n.ports, p)
	return p
}

func (n *Node) String() string { return n.ID }

// PortKind is the role of a port inside its node's routing rules.
type PortKind int

const (
	PortAlways PortKind = iota
	PortIf
	PortElseIf
	PortElse
)

func (k PortKind) String() string {
	switch k {
	case PortIf:
		return "if"
	case PortElseIf:
		return "elif"
	case PortElse:
		return "else"
	default:
		return "always"
	}
}

// Port is a named outgoing channel of a node.
type Port struct {
	Name      string
	Kind      PortKind
	Condition domain.Descriptor
	// Fork gives every edge of the port its own copy of the run state.
	Fork bool

	node *Node
}

// Node returns the node the port belongs to.
func (p *Port) Node() *Node { return p.node }

// Forked marks the port as forking and returns it.
func (p *Port) Forked() *Port {
	p.Fork = true
	return p
}

func (p *Port) String() string {
	if p.node == nil {
		return p.Name
	}
	return fmt.Sprintf("%s.%s", p.node.ID, p.Name)
}
