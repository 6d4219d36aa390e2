package ref

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aretw0/arbor/pkg/domain"
)

// programs caches compiled expressions by source and result kind.
var programs = struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}{cache: make(map[string]*vm.Program)}

// Expression is a descriptor backed by an expr-lang program. The program sees
// the run state as four maps:
//
//	inputs.<name>
//	outputs.<node>.<name>
//	external.<node>.<name>
//	trigger.<name>
//
// Undefined values are absent from the maps.
type Expression struct {
	source  string
	program *vm.Program
}

// Expr compiles a value expression.
func Expr(source string) (*Expression, error) {
	return compile(source, false)
}

// Cond compiles an expression that must evaluate to a boolean, for port conditions.
func Cond(source string) (*Expression, error) {
	return compile(source, true)
}

// MustCond is like Cond but panics on a compile error. Intended for
// package-level workflow declarations.
func MustCond(source string) *Expression {
	e, err := Cond(source)
	if err != nil {
		panic(err)
	}
	return e
}

func compile(source string, asBool bool) (*Expression, error) {
	cacheKey := source
	if asBool {
		cacheKey = "bool:" + source
	}

	programs.mu.RLock()
	prog, ok := programs.cache[cacheKey]
	programs.mu.RUnlock()
	if ok {
		return &Expression{source: source, program: prog}, nil
	}

	opts := []expr.Option{expr.AllowUndefinedVariables()}
	if asBool {
		opts = append(opts, expr.AsBool())
	}
	prog, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", source, err)
	}

	programs.mu.Lock()
	programs.cache[cacheKey] = prog
	programs.mu.Unlock()

	return &Expression{source: source, program: prog}, nil
}

func (e *Expression) Resolve(r domain.Reader) (any, error) {
	out, err := expr.Run(e.program, Env(r))
	if err != nil {
		return nil, fmt.Errorf("expression %q evaluation failed: %w", e.source, err)
	}
	return out, nil
}

func (e *Expression) String() string { return e.source }

// Env builds the expression environment for a reader.
func Env(r domain.Reader) map[string]any {
	inputs := map[string]any{}
	outputs := map[string]any{}
	external := map[string]any{}
	trigger := map[string]any{}

	for _, k := range r.Keys() {
		v := r.Get(k)
		if domain.IsUndefined(v) {
			continue
		}
		switch k.Space {
		case domain.NamespaceInputs:
			inputs[k.Name] = v
		case domain.NamespaceTrigger:
			trigger[k.Name] = v
		case domain.NamespaceOutputs:
			nested(outputs, k.Node)[k.Name] = v
		case domain.NamespaceExternal:
			nested(external, k.Node)[k.Name] = v
		}
	}

	return map[string]any{
		"inputs":   inputs,
		"outputs":  outputs,
		"external": external,
		"trigger":  trigger,
	}
}

func nested(m map[string]any, key string) map[string]any {
	if inner, ok := m[key].(map[string]any); ok {
		return inner
	}
	inner := map[string]any{}
	m[key] = inner
	return inner
}
