package domain

import (
	"fmt"
	"strings"
)

// Namespace partitions run state.
type Namespace string

const (
	NamespaceInputs   Namespace = "inputs"
	NamespaceOutputs  Namespace = "outputs"
	NamespaceExternal Namespace = "external"
	NamespaceTrigger  Namespace = "trigger"
)

// Key addresses a single value in run state.
// Node is empty for workflow inputs and trigger attributes.
type Key struct {
	Space Namespace
	Node  string
	Name  string
}

// InputKey addresses a workflow input.
func InputKey(name string) Key { return Key{Space: NamespaceInputs, Name: name} }

// OutputKey addresses an output produced by a node.
func OutputKey(node, name string) Key { return Key{Space: NamespaceOutputs, Node: node, Name: name} }

// ExternalKey addresses an external input slot declared by a node.
func ExternalKey(node, name string) Key { return Key{Space: NamespaceExternal, Node: node, Name: name} }

// TriggerKey addresses an attribute of the bound trigger.
func TriggerKey(name string) Key { return Key{Space: NamespaceTrigger, Name: name} }

// String renders the key as "space.node.name" (or "space.name" when Node is empty).
// The rendering is stable and is used as the storage key inside snapshots.
func (k Key) String() string {
	if k.Node == "" {
		return string(k.Space) + "." + k.Name
	}
	return string(k.Space) + "." + k.Node + "." + k.Name
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("invalid state key %q", s)
	}
	space := Namespace(parts[0])
	switch space {
	case NamespaceInputs, NamespaceTrigger:
		return Key{Space: space, Name: strings.Join(parts[1:], ".")}, nil
	case NamespaceOutputs, NamespaceExternal:
		if len(parts) != 3 {
			return Key{}, fmt.Errorf("invalid %s key %q: missing node", space, s)
		}
		return Key{Space: space, Node: parts[1], Name: parts[2]}, nil
	default:
		return Key{}, fmt.Errorf("invalid state key %q: unknown namespace %q", s, parts[0])
	}
}

// MarshalText encodes the key in its String form.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a key written by MarshalText.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type undefined struct{}

func (undefined) String() string { return "<undefined>" }

// Undefined is the sentinel returned for values that were never written.
// It is distinct from an explicit nil.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Reader gives read access to run state.
type Reader interface {
	// Get returns the value stored at key, or Undefined.
	Get(key Key) any
	// Keys returns every key that currently holds a value.
	Keys() []Key
}

// Descriptor is a lazily evaluated reference to state.
type Descriptor interface {
	Resolve(r Reader) (any, error)
}

// Referencer is implemented by descriptors that can list the keys they read.
// The scheduler uses it to decide whether a port can be evaluated early.
type Referencer interface {
	References() []Key
}

// Outputs is the set of named values produced by a node.
type Outputs map[string]any
