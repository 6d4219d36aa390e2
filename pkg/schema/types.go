package schema

import (
	"fmt"
	"reflect"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// optional marks a field that may be absent.
type optional interface {
	optional() bool
}

type basicType struct {
	name  string
	check func(any) error
}

func (t *basicType) Name() string             { return t.name }
func (t *basicType) Validate(value any) error { return t.check(value) }

// String accepts string values.
func String() Type {
	return &basicType{name: "string", check: func(v any) error {
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		return nil
	}}
}

// Int accepts Go integers and whole floats (as produced by JSON decoding).
func Int() Type {
	return &basicType{name: "int", check: func(v any) error {
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return nil
		case float64:
			if n == float64(int64(n)) {
				return nil
			}
			return fmt.Errorf("expected int, got float (not a whole number)")
		default:
			return fmt.Errorf("expected int, got %T", v)
		}
	}}
}

// Float accepts any numeric value.
func Float() Type {
	return &basicType{name: "float", check: func(v any) error {
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return nil
		default:
			return fmt.Errorf("expected float, got %T", v)
		}
	}}
}

// Bool accepts boolean values.
func Bool() Type {
	return &basicType{name: "bool", check: func(v any) error {
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		return nil
	}}
}

// Any accepts every value, including nil.
func Any() Type {
	return &basicType{name: "any", check: func(any) error { return nil }}
}

// Map accepts string-keyed maps.
func Map() Type {
	return &basicType{name: "map", check: func(v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("expected map with string keys, got %T", v)
		}
		return nil
	}}
}

type sliceType struct {
	elem Type
}

// Slice accepts slices and arrays whose elements all satisfy elem.
func Slice(elem Type) Type {
	return &sliceType{elem: elem}
}

func (t *sliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elem.Name())
}

func (t *sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type optionalType struct {
	Type
}

func (optionalType) optional() bool { return true }

func (t optionalType) Name() string { return t.Type.Name() + "?" }

// Optional allows the field to be missing. When present it must satisfy inner.
func Optional(inner Type) Type {
	return optionalType{Type: inner}
}

// Custom creates a type with a user-defined validation function.
func Custom(name string, validate func(any) error) Type {
	return &basicType{name: name, check: validate}
}
