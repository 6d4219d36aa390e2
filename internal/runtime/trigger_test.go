package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/state"
)

var (
	chatTrigger  = domain.NewTriggerType("chat", nil)
	slackTrigger = domain.NewTriggerType("slack", chatTrigger)
	cronTrigger  = domain.NewTriggerType("cron", nil)
)

func triggeredGraph() *graph.Graph {
	return graph.Must(graph.Parallel(
		graph.Must(graph.Triggered(chatTrigger, graph.NewNode("onChat", nil))),
		graph.Must(graph.Triggered(cronTrigger, graph.NewNode("onCron", nil))),
		graph.NewNode("manual", nil),
	))
}

func bindIDs(t *testing.T, g *graph.Graph, tr *domain.Trigger) []string {
	t.Helper()
	nodes, err := Bind(g, tr, state.New(state.Meta{}))
	require.NoError(t, err)
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestBind(t *testing.T) {
	g := triggeredGraph()

	assert.Equal(t, []string{"manual"}, bindIDs(t, g, nil))
	assert.Equal(t, []string{"manual"}, bindIDs(t, g, &domain.Trigger{Type: domain.ManualTrigger}))
	assert.Equal(t, []string{"onChat"}, bindIDs(t, g, &domain.Trigger{Type: chatTrigger}))
	assert.Equal(t, []string{"onChat"}, bindIDs(t, g, &domain.Trigger{Type: slackTrigger}), "subtypes activate parent bindings")
	assert.Equal(t, []string{"onCron"}, bindIDs(t, g, &domain.Trigger{Type: cronTrigger}))

	_, err := Bind(g, &domain.Trigger{Type: domain.NewTriggerType("webhook", nil)}, state.New(state.Meta{}))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInputs, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "chat")
}

func TestBind_RequiresTriggerWithoutManualEntrypoints(t *testing.T) {
	g := graph.Must(graph.Triggered(cronTrigger, graph.NewNode("onCron", nil)))

	_, err := Bind(g, nil, state.New(state.Meta{}))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidInputs, domain.CodeOf(err))
}

func TestBind_UntriggeredGraph(t *testing.T) {
	g := graph.Must(graph.Parallel(graph.NewNode("A", nil), graph.NewNode("B", nil)))
	assert.Equal(t, []string{"A", "B"}, bindIDs(t, g, nil))

	_, err := Bind(g, &domain.Trigger{Type: cronTrigger}, state.New(state.Meta{}))
	assert.Equal(t, domain.CodeInvalidInputs, domain.CodeOf(err))
}

func TestBind_CopiesAttributes(t *testing.T) {
	g := graph.Must(graph.Triggered(chatTrigger, graph.NewNode("onChat", nil)))
	st := state.New(state.Meta{})
	tr, err := domain.NewTrigger(slackTrigger, map[string]any{"channel": "#ops"})
	require.NoError(t, err)

	_, err = Bind(g, tr, st)
	require.NoError(t, err)
	assert.Equal(t, "#ops", st.Get(domain.TriggerKey("channel")))
}

func TestRun_TriggerAttributesReachNodes(t *testing.T) {
	var seen any
	node := graph.NewNode("onChat", func(_ context.Context, rc *graph.RunContext) (domain.Outputs, error) {
		seen = rc.Trigger("channel")
		return nil, nil
	})
	r := newTestRunner(t, graph.Must(graph.Triggered(chatTrigger, node)))
	tr, err := domain.NewTrigger(chatTrigger, map[string]any{"channel": "#ops"})
	require.NoError(t, err)

	events, res := run(t, r, Request{Trigger: tr})
	require.Equal(t, domain.StatusFulfilled, res.Status)
	assert.Equal(t, "#ops", seen)
	body := events[0].Body.(domain.WorkflowInitiatedBody)
	assert.Equal(t, "chat", body.Trigger)
}
