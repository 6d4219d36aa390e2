package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
)

func reader(values map[domain.Key]any) domain.Reader {
	snap := &domain.Snapshot{Values: map[string]any{}}
	for k, v := range values {
		snap.Values[k.String()] = v
	}
	return snap
}

func TestDescriptors(t *testing.T) {
	r := reader(map[domain.Key]any{
		domain.InputKey("x"):             "yes",
		domain.OutputKey("A", "count"):   3,
		domain.OutputKey("A", "nothing"): nil,
		domain.TriggerKey("channel"):     "#ops",
	})

	tests := []struct {
		name string
		d    domain.Descriptor
		want any
	}{
		{"input", Input("x"), "yes"},
		{"output", Output("A", "count"), 3},
		{"undefined", Output("B", "count"), domain.Undefined},
		{"trigger", TriggerAttr("channel"), "#ops"},
		{"eq true", Eq(Input("x"), "yes"), true},
		{"eq false", Eq(Input("x"), "no"), false},
		{"eq undefined", Eq(Output("B", "x"), Output("C", "x")), false},
		{"ne", Ne(Input("x"), "no"), true},
		{"and", And(Eq(Input("x"), "yes"), Eq(Output("A", "count"), 3)), true},
		{"or", Or(false, Eq(Input("x"), "yes")), true},
		{"not", Not(Eq(Input("x"), "yes")), false},
		{"defined nil", IsDefined(Output("A", "nothing")), true},
		{"not defined", IsDefined(Output("Z", "nothing")), false},
		{"coalesce", Coalesce(Output("Z", "x"), Output("A", "nothing"), Input("x")), "yes"},
		{"coalesce empty", Coalesce(Output("Z", "x")), domain.Undefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.Resolve(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBool(t *testing.T) {
	r := reader(map[domain.Key]any{domain.InputKey("x"): "yes"})

	ok, err := Bool(Eq(Input("x"), "yes"), r)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Bool(Input("missing"), r)
	require.NoError(t, err)
	assert.False(t, ok, "undefined conditions are false")

	_, err = Bool(Input("x"), r)
	assert.Error(t, err, "non-boolean conditions are rejected")
}

func TestReady(t *testing.T) {
	r := reader(map[domain.Key]any{domain.OutputKey("A", "label"): "yes"})

	assert.True(t, Ready(Eq(Output("A", "label"), "yes"), r))
	assert.False(t, Ready(Eq(Output("A", "other"), "yes"), r))
	assert.True(t, Ready(Const(true), r))
	assert.False(t, Ready(IsDefined(Output("A", "label")), r))
	assert.False(t, Ready(Func(func(domain.Reader) (any, error) { return true, nil }), r))
	assert.False(t, Ready(And(Output("A", "label"), Func(func(domain.Reader) (any, error) { return true, nil })), r))
}

func TestExpr(t *testing.T) {
	r := reader(map[domain.Key]any{
		domain.InputKey("x"):           "yes",
		domain.OutputKey("A", "score"): 0.9,
		domain.TriggerKey("user"):      "ana",
	})

	cond, err := Cond(`inputs.x == "yes" && outputs.A.score > 0.5`)
	require.NoError(t, err)
	got, err := cond.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	val, err := Expr(`trigger.user + "!"`)
	require.NoError(t, err)
	got, err = val.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "ana!", got)

	missing := MustCond(`outputs.B == nil`)
	got, err = missing.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = Cond(`inputs.x ==`)
	assert.Error(t, err)

	assert.Panics(t, func() { MustCond(`(`) })
}
