// Package ref provides descriptors: lazy references to run state that are
// resolved when a port condition, a readiness requirement or a workflow output
// is evaluated.
package ref

import (
	"fmt"
	"reflect"

	"github.com/aretw0/arbor/pkg/domain"
)

// KeyRef resolves to the value stored at a state key.
type KeyRef struct {
	Key domain.Key
}

func (r KeyRef) Resolve(rd domain.Reader) (any, error) { return rd.Get(r.Key), nil }
func (r KeyRef) References() []domain.Key              { return []domain.Key{r.Key} }
func (r KeyRef) String() string                        { return r.Key.String() }

// Input references a workflow input.
func Input(name string) KeyRef { return KeyRef{Key: domain.InputKey(name)} }

// Output references an output of a node.
func Output(node, name string) KeyRef { return KeyRef{Key: domain.OutputKey(node, name)} }

// External references an external input declared by a node.
func External(node, name string) KeyRef { return KeyRef{Key: domain.ExternalKey(node, name)} }

// TriggerAttr references an attribute of the bound trigger.
func TriggerAttr(name string) KeyRef { return KeyRef{Key: domain.TriggerKey(name)} }

// ConstRef always resolves to its value.
type ConstRef struct{ Value any }

func (c ConstRef) Resolve(domain.Reader) (any, error) { return c.Value, nil }
func (c ConstRef) References() []domain.Key           { return nil }

// Const wraps a literal value.
func Const(v any) ConstRef { return ConstRef{Value: v} }

// Func adapts a plain function. It does not report references, so ports
// using it are only evaluated once their node has fulfilled.
type Func func(domain.Reader) (any, error)

func (f Func) Resolve(r domain.Reader) (any, error) { return f(r) }

type compare struct {
	left, right domain.Descriptor
	negate      bool
}

// Eq is true when both sides resolve to deeply equal values. An undefined
// side never equals anything.
func Eq(left, right any) domain.Descriptor {
	return compare{left: lift(left), right: lift(right)}
}

// Ne is the negation of Eq.
func Ne(left, right any) domain.Descriptor {
	return compare{left: lift(left), right: lift(right), negate: true}
}

func (c compare) Resolve(r domain.Reader) (any, error) {
	l, err := c.left.Resolve(r)
	if err != nil {
		return nil, err
	}
	rv, err := c.right.Resolve(r)
	if err != nil {
		return nil, err
	}
	eq := !domain.IsUndefined(l) && !domain.IsUndefined(rv) && reflect.DeepEqual(l, rv)
	return eq != c.negate, nil
}

func (c compare) References() []domain.Key      { return refs(c.left, c.right) }
func (c compare) children() []domain.Descriptor { return []domain.Descriptor{c.left, c.right} }

type logical struct {
	op       string
	operands []domain.Descriptor
}

// And is true when every operand is true. It short-circuits.
func And(operands ...any) domain.Descriptor { return logical{op: "and", operands: liftAll(operands)} }

// Or is true when any operand is true. It short-circuits.
func Or(operands ...any) domain.Descriptor { return logical{op: "or", operands: liftAll(operands)} }

// Not negates a boolean descriptor.
func Not(operand any) domain.Descriptor { return logical{op: "not", operands: liftAll([]any{operand})} }

func (l logical) Resolve(r domain.Reader) (any, error) {
	switch l.op {
	case "not":
		v, err := Bool(l.operands[0], r)
		return !v, err
	case "and":
		for _, d := range l.operands {
			v, err := Bool(d, r)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	default:
		for _, d := range l.operands {
			v, err := Bool(d, r)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	}
}

func (l logical) References() []domain.Key      { return refs(l.operands...) }
func (l logical) children() []domain.Descriptor { return l.operands }

type isDefined struct{ inner domain.Descriptor }

// IsDefined is true when the operand resolves to anything but Undefined.
func IsDefined(operand any) domain.Descriptor { return isDefined{inner: lift(operand)} }

func (d isDefined) Resolve(r domain.Reader) (any, error) {
	v, err := d.inner.Resolve(r)
	if err != nil {
		return nil, err
	}
	return !domain.IsUndefined(v), nil
}

type coalesce struct{ operands []domain.Descriptor }

// Coalesce resolves to the first operand that is defined and non-nil.
func Coalesce(operands ...any) domain.Descriptor { return coalesce{operands: liftAll(operands)} }

func (c coalesce) Resolve(r domain.Reader) (any, error) {
	for _, d := range c.operands {
		v, err := d.Resolve(r)
		if err != nil {
			return nil, err
		}
		if !domain.IsUndefined(v) && v != nil {
			return v, nil
		}
	}
	return domain.Undefined, nil
}

// Bool resolves d and requires a boolean result.
func Bool(d domain.Descriptor, r domain.Reader) (bool, error) {
	v, err := d.Resolve(r)
	if err != nil {
		return false, err
	}
	if domain.IsUndefined(v) {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean condition, got %T", v)
	}
	return b, nil
}

type composite interface {
	children() []domain.Descriptor
}

// Ready reports whether every key d references is defined in r. Descriptors
// that do not implement domain.Referencer (directly or through all of their
// operands) are never ready early.
func Ready(d domain.Descriptor, r domain.Reader) bool {
	switch x := d.(type) {
	case composite:
		for _, c := range x.children() {
			if !Ready(c, r) {
				return false
			}
		}
		return true
	case domain.Referencer:
		for _, k := range x.References() {
			if domain.IsUndefined(r.Get(k)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func lift(v any) domain.Descriptor {
	if d, ok := v.(domain.Descriptor); ok {
		return d
	}
	return ConstRef{Value: v}
}

func liftAll(vs []any) []domain.Descriptor {
	out := make([]domain.Descriptor, len(vs))
	for i, v := range vs {
		out[i] = lift(v)
	}
	return out
}

func refs(ds ...domain.Descriptor) []domain.Key {
	var out []domain.Key
	for _, d := range ds {
		if rf, ok := d.(domain.Referencer); ok {
			out = append(out, rf.References()...)
		}
	}
	return out
}
