package domain

import (
	"sort"
	"time"
)

// RunStatus is the lifecycle status of a workflow run.
type RunStatus string

const (
	StatusInitiated RunStatus = "initiated"
	StatusRunning   RunStatus = "running"
	StatusFulfilled RunStatus = "fulfilled"
	StatusRejected  RunStatus = "rejected"
	StatusPaused    RunStatus = "paused"
)

// CacheRecord is the serializable form of a state's execution cache.
type CacheRecord struct {
	// Seq is a logical clock advanced on every initiation and fulfilment.
	Seq uint64 `json:"seq"`
	// Initiated holds "node|span" dispatch keys.
	Initiated []string `json:"initiated,omitempty"`
	// InitiatedAt is the clock value of each node's most recent initiation.
	InitiatedAt map[string]uint64 `json:"initiated_at,omitempty"`
	// FulfilledAt is the clock value of each node's most recent fulfilment.
	FulfilledAt map[string]uint64 `json:"fulfilled_at,omitempty"`
}

// Snapshot is an immutable copy of run state taken after an atomic commit.
type Snapshot struct {
	ExecutionID string         `json:"execution_id"`
	Workflow    string         `json:"workflow,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
	SpanID      string         `json:"span_id,omitempty"`
	Parent      *ParentContext `json:"parent,omitempty"`
	Status      RunStatus      `json:"status,omitempty"`
	Version     uint64         `json:"version"`
	Values      map[string]any `json:"values"`
	Cache       CacheRecord    `json:"cache"`
	// Pending lists external inputs the run is waiting for.
	Pending   []Key     `json:"pending,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Get implements Reader so outputs can be resolved against a snapshot.
func (s *Snapshot) Get(key Key) any {
	if s == nil {
		return Undefined
	}
	v, ok := s.Values[key.String()]
	if !ok {
		return Undefined
	}
	return v
}

// Keys implements Reader. Keys are returned in lexical order.
func (s *Snapshot) Keys() []Key {
	if s == nil {
		return nil
	}
	raw := make([]string, 0, len(s.Values))
	for k := range s.Values {
		raw = append(raw, k)
	}
	sort.Strings(raw)
	keys := make([]Key, 0, len(raw))
	for _, r := range raw {
		if k, err := ParseKey(r); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}
