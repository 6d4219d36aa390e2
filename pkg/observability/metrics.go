package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbor/pkg/domain"
)

// Metrics records Prometheus metrics from lifecycle events.
type Metrics struct {
	events    *prometheus.CounterVec
	runs      *prometheus.CounterVec
	nodes     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	active    prometheus.Gauge
	snapshots *prometheus.CounterVec

	mu        sync.Mutex
	started   map[string]time.Time
	workflows map[string]string
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_events_total",
			Help: "Lifecycle events emitted, by event name",
		}, []string{"event"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_workflow_runs_total",
			Help: "Finished workflow runs, by workflow and terminal status",
		}, []string{"workflow", "status"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_node_executions_total",
			Help: "Finished node executions, by node and outcome",
		}, []string{"node", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_node_duration_seconds",
			Help:    "Time from node initiation to fulfilment or rejection",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbor_nodes_active",
			Help: "Node executions currently in flight",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_snapshots_total",
			Help: "State snapshots taken, by run status",
		}, []string{"status"}),
		started:   make(map[string]time.Time),
		workflows: make(map[string]string),
	}
	for _, c := range []prometheus.Collector{m.events, m.runs, m.nodes, m.duration, m.active, m.snapshots} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SnapshotState(_ context.Context, snap *domain.Snapshot) error {
	m.snapshots.WithLabelValues(string(snap.Status)).Inc()
	return nil
}

func (m *Metrics) EmitEvent(_ context.Context, ev *domain.Event) error {
	m.events.WithLabelValues(string(ev.Name)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch body := ev.Body.(type) {
	case domain.WorkflowInitiatedBody:
		m.workflows[ev.SpanID] = body.Workflow
	case domain.NodeInitiatedBody:
		m.started[ev.SpanID] = ev.Timestamp
		m.active.Inc()
	case domain.NodeFulfilledBody:
		m.finishNode(ev, body.Node, "fulfilled")
	case domain.NodeRejectedBody:
		outcome := "rejected"
		if body.Error != nil && body.Error.Code == domain.CodeNodeCancelled {
			outcome = "cancelled"
		}
		m.finishNode(ev, body.Node, outcome)
	}

	if ev.Name.IsTerminal() {
		status := string(ev.Name)
		switch ev.Name {
		case domain.EventWorkflowFulfilled:
			status = string(domain.StatusFulfilled)
		case domain.EventWorkflowRejected:
			status = string(domain.StatusRejected)
		case domain.EventWorkflowPaused:
			status = string(domain.StatusPaused)
		}
		m.runs.WithLabelValues(m.workflows[ev.SpanID], status).Inc()
		delete(m.workflows, ev.SpanID)
	}
	return nil
}

func (m *Metrics) finishNode(ev *domain.Event, node, outcome string) {
	m.nodes.WithLabelValues(node, outcome).Inc()
	start, ok := m.started[ev.SpanID]
	if !ok {
		return
	}
	delete(m.started, ev.SpanID)
	m.active.Dec()
	m.duration.WithLabelValues(node).Observe(ev.Timestamp.Sub(start).Seconds())
}
