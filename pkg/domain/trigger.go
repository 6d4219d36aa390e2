package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// TriggerType names a kind of external cause that can start a workflow.
// Types form a tree through Parent; an instance of a subtype is compatible
// with every ancestor.
type TriggerType struct {
	Name   string
	Parent *TriggerType
}

// ManualTrigger is implicitly accepted by workflows that declare no triggers.
var ManualTrigger = &TriggerType{Name: "manual"}

// NewTriggerType declares a trigger type. parent may be nil.
func NewTriggerType(name string, parent *TriggerType) *TriggerType {
	return &TriggerType{Name: name, Parent: parent}
}

// Is reports whether t is other or one of its subtypes.
func (t *TriggerType) Is(other *TriggerType) bool {
	for cur := t; cur != nil; cur = cur.Parent {
		if cur == other {
			return true
		}
	}
	return false
}

func (t *TriggerType) String() string {
	if t == nil {
		return ""
	}
	return t.Name
}

// Trigger is a concrete instance delivered to a run.
type Trigger struct {
	Type       *TriggerType
	Attributes map[string]any
}

// NewTrigger creates a trigger instance. payload may be nil, a map or a struct;
// structs are flattened into attributes using their json tags.
func NewTrigger(t *TriggerType, payload any) (*Trigger, error) {
	if t == nil {
		return nil, fmt.Errorf("trigger type is required")
	}
	attrs := map[string]any{}
	if payload != nil {
		if err := decode(payload, &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode %s trigger payload: %w", t.Name, err)
		}
	}
	return &Trigger{Type: t, Attributes: attrs}, nil
}

// Decode copies the trigger attributes into target (a pointer to a struct or map).
func (t *Trigger) Decode(target any) error {
	return decode(t.Attributes, target)
}

func decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
