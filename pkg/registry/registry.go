// Package registry holds per-run mock definitions used to short-circuit node
// execution in tests and dry runs.
package registry

import (
	"fmt"
	"sync"

	"github.com/mohae/deepcopy"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ref"
)

// MockStrategy is consulted by the scheduler before running a node body.
type MockStrategy interface {
	// Lookup returns the outputs to use instead of running node. ok is false
	// when no mock applies.
	Lookup(node string, state domain.Reader) (outputs domain.Outputs, ok bool, err error)
}

// Mock replaces a node's outputs when When resolves true. A nil When always matches.
type Mock struct {
	When domain.Descriptor
	Then domain.Outputs
}

// Registry manages mocks by node ID. The first matching mock wins.
type Registry struct {
	mu    sync.RWMutex
	mocks map[string][]Mock
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mocks: make(map[string][]Mock),
	}
}

// Register appends a mock for node.
func (r *Registry) Register(node string, when domain.Descriptor, then domain.Outputs) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mocks[node] = append(r.mocks[node], Mock{When: when, Then: then})
	return r
}

// Always registers an unconditional mock for node.
func (r *Registry) Always(node string, then domain.Outputs) *Registry {
	return r.Register(node, nil, then)
}

// Lookup implements MockStrategy. The returned outputs are a copy.
func (r *Registry) Lookup(node string, state domain.Reader) (domain.Outputs, bool, error) {
	r.mu.RLock()
	mocks := append([]Mock(nil), r.mocks[node]...)
	r.mu.RUnlock()

	for _, m := range mocks {
		if m.When != nil {
			match, err := ref.Bool(m.When, state)
			if err != nil {
				return nil, false, fmt.Errorf("mock condition for %s: %w", node, err)
			}
			if !match {
				continue
			}
		}
		out, _ := deepcopy.Copy(m.Then).(domain.Outputs)
		if out == nil {
			out = domain.Outputs{}
		}
		return out, true, nil
	}
	return nil, false, nil
}

// Len returns the number of mocks registered for node.
func (r *Registry) Len(node string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mocks[node])
}
