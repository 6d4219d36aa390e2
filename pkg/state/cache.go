package state

import (
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Cache tracks which (node, invoking span) pairs were dispatched and when
// nodes were initiated and fulfilled, using a logical clock.
type Cache struct {
	mu          sync.Mutex
	seq         uint64
	initiated   map[string]struct{}
	initiatedAt map[string]uint64
	fulfilledAt map[string]uint64
}

func newCache() *Cache {
	return &Cache{
		initiated:   make(map[string]struct{}),
		initiatedAt: make(map[string]uint64),
		fulfilledAt: make(map[string]uint64),
	}
}

func dispatchKey(node, span string) string { return node + "|" + span }

// TryInitiate records the dispatch of node by the given invoking span.
// It returns false if that pair was already recorded.
func (c *Cache) TryInitiate(node, invokingSpan string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := dispatchKey(node, invokingSpan)
	if _, ok := c.initiated[k]; ok {
		return false
	}
	c.initiated[k] = struct{}{}
	c.seq++
	c.initiatedAt[node] = c.seq
	return true
}

// Initiated reports whether node was dispatched by invokingSpan.
func (c *Cache) Initiated(node, invokingSpan string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.initiated[dispatchKey(node, invokingSpan)]
	return ok
}

func (c *Cache) markFulfilled(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.fulfilledAt[node] = c.seq
}

// FulfilledSince reports whether dep fulfilled after node was last initiated.
// A node that was never initiated accepts any prior fulfilment.
func (c *Cache) FulfilledSince(dep, node string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.fulfilledAt[dep]
	return ok && at > c.initiatedAt[node]
}

// Fulfilled reports whether node has fulfilled at least once.
func (c *Cache) Fulfilled(node string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.fulfilledAt[node]
	return ok
}

func (c *Cache) clone() *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := newCache()
	out.seq = c.seq
	for k := range c.initiated {
		out.initiated[k] = struct{}{}
	}
	for k, v := range c.initiatedAt {
		out.initiatedAt[k] = v
	}
	for k, v := range c.fulfilledAt {
		out.fulfilledAt[k] = v
	}
	return out
}

// absorb folds other into c, keeping the most recent clock values.
func (c *Cache) absorb(other *Cache) {
	o := other.clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range o.initiated {
		c.initiated[k] = struct{}{}
	}
	for k, v := range o.initiatedAt {
		if v > c.initiatedAt[k] {
			c.initiatedAt[k] = v
		}
	}
	for k, v := range o.fulfilledAt {
		if v > c.fulfilledAt[k] {
			c.fulfilledAt[k] = v
		}
	}
	if o.seq > c.seq {
		c.seq = o.seq
	}
}

func (c *Cache) record() domain.CacheRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := domain.CacheRecord{
		Seq:         c.seq,
		Initiated:   make([]string, 0, len(c.initiated)),
		InitiatedAt: make(map[string]uint64, len(c.initiatedAt)),
		FulfilledAt: make(map[string]uint64, len(c.fulfilledAt)),
	}
	for k := range c.initiated {
		rec.Initiated = append(rec.Initiated, k)
	}
	sort.Strings(rec.Initiated)
	for k, v := range c.initiatedAt {
		rec.InitiatedAt[k] = v
	}
	for k, v := range c.fulfilledAt {
		rec.FulfilledAt[k] = v
	}
	return rec
}

func cacheFromRecord(rec domain.CacheRecord) *Cache {
	c := newCache()
	c.seq = rec.Seq
	for _, k := range rec.Initiated {
		c.initiated[k] = struct{}{}
	}
	for k, v := range rec.InitiatedAt {
		c.initiatedAt[k] = v
	}
	for k, v := range rec.FulfilledAt {
		c.fulfilledAt[k] = v
	}
	return c
}
