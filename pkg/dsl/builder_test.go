package dsl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ref"
	"github.com/aretw0/arbor/pkg/schema"
)

func ids(nodes []*graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestBuilder_Branching(t *testing.T) {
	b := New()

	// Targets are declared after the node routing to them.
	b.Add("A").
		If("P1", ref.Eq(ref.Input("X"), "yes")).Go("B").
		Else("P2").Go("C")
	b.Add("B")
	b.Add("C")

	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(g.Entrypoints()))
	assert.Equal(t, []string{"A", "B", "C"}, ids(g.Nodes()))

	a, _ := g.Node("A")
	assert.Equal(t, []string{"B"}, ids(g.Successors(a.Port("P1"))))
	assert.Equal(t, []string{"C"}, ids(g.Successors(a.Port("P2"))))
}

func TestBuilder_FanInWithForkAndAwait(t *testing.T) {
	run := func(context.Context, *graph.RunContext) (domain.Outputs, error) { return nil, nil }

	b := New()
	b.Add("start").Run(run).Always("split").Fork().Go("left", "right")
	b.Add("left").Go("join")
	b.Add("right").Go("join")
	b.Add("join").AwaitAll().Await("approval").Outputs(schema.Schema{"ok": schema.Bool()})

	g, err := b.Build()
	require.NoError(t, err)

	start, _ := g.Node("start")
	assert.NotNil(t, start.Run)
	assert.True(t, start.Port("split").Fork)
	assert.Equal(t, []string{"left", "right"}, g.Predecessors("join"))

	join, _ := g.Node("join")
	assert.Equal(t, graph.AwaitAll, join.Merge)
	assert.Equal(t, []string{"approval"}, join.ExternalInputs)
	assert.NotNil(t, join.Outputs)
}

func TestBuilder_GoReusesDefaultPort(t *testing.T) {
	b := New()
	b.Add("A").Go("B").Go("C")
	b.Add("B")
	b.Add("C")

	g, err := b.Build()
	require.NoError(t, err)
	a, _ := g.Node("A")
	require.Len(t, a.Ports(), 1)
	assert.Equal(t, []string{"B", "C"}, ids(g.Successors(a.Port(graph.DefaultPort))))
}

func TestBuilder_LoopNeedsExplicitEntry(t *testing.T) {
	b := New()
	b.Add("A").
		If("again", ref.Not(ref.IsDefined(ref.Output("A", "done")))).Go("A").
		Else("exit").Go("B")
	b.Add("B")

	_, err := b.Build()
	assert.Error(t, err, "every node is routed to")

	g, err := b.Entry("A").Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(g.Entrypoints()))
}

func TestBuilder_Triggers(t *testing.T) {
	cron := domain.NewTriggerType("cron", nil)

	b := New()
	b.Add("nightly").Go("report")
	b.Add("manual").Go("report")
	b.Add("report")
	b.Trigger(cron, "nightly")

	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly", "manual"}, ids(g.Entrypoints()))
	assert.Equal(t, []string{"cron"}, g.TriggerNames())
	assert.Equal(t, []string{"manual"}, ids(g.UntriggeredEntrypoints()))
}

func TestBuilder_Errors(t *testing.T) {
	_, err := New().Build()
	assert.Error(t, err)

	b := New()
	b.Add("A").Go("missing")
	_, err = b.Build()
	assert.ErrorContains(t, err, "missing")

	b = New()
	b.Add("A")
	b.Trigger(domain.NewTriggerType("cron", nil), "ghost")
	_, err = b.Build()
	assert.ErrorContains(t, err, "ghost")

	b = New()
	b.Add("A").Go("A")
	b.Entry("A")
	_, err = b.Build()
	assert.Equal(t, domain.CodeInvalidWorkflow, domain.CodeOf(err))
}
