// Package schema validates the named values that cross a node or workflow boundary.
//
// A Schema maps field names to a Type. Workflows use one to check their inputs
// before a run starts, and nodes use one to check the outputs they produce
// before those outputs are committed to run state.
//
//	outputs := schema.Schema{
//	    "label":  schema.String(),
//	    "score":  schema.Float(),
//	    "tags":   schema.Optional(schema.Slice(schema.String())),
//	}
//
//	if err := outputs.Validate(values); err != nil {
//	    // err is an *AggregateError listing every failing field
//	}
package schema
