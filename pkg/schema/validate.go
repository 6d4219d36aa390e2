package schema

import "sort"

// Schema is a map of field names to their expected types.
type Schema map[string]Type

// Fields returns the field names in lexical order.
func (s Schema) Fields() []string {
	fields := make([]string, 0, len(s))
	for name := range s {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// Validate checks data against the schema. Fields are checked in lexical order
// and every failure is reported in a single *AggregateError. Extra keys in data
// are allowed.
func (s Schema) Validate(data map[string]any) error {
	if len(s) == 0 {
		return nil
	}

	var errs []error
	for _, name := range s.Fields() {
		typ := s[name]
		value, exists := data[name]
		if !exists {
			if o, ok := typ.(optional); ok && o.optional() {
				continue
			}
			errs = append(errs, &ValidationError{Key: name, Reason: "required"})
			continue
		}
		if err := typ.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: name, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
