package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

type emission struct {
	snapshot *domain.Snapshot
	event    *domain.Event
}

// pipeline hands snapshots and events to the emitters on a single worker.
// The queue is unbounded so a slow emitter delays delivery, never dispatch.
// Emitter errors and panics are logged and dropped.
type pipeline struct {
	emitters []ports.Emitter
	logger   *slog.Logger

	mu     sync.Mutex
	ready  *sync.Cond
	items  []emission
	closed bool
}

func newPipeline(emitters []ports.Emitter, buffer int, logger *slog.Logger) *pipeline {
	p := &pipeline{
		emitters: emitters,
		logger:   logger,
		items:    make([]emission, 0, buffer),
	}
	p.ready = sync.NewCond(&p.mu)
	return p
}

func (p *pipeline) snapshot(s *domain.Snapshot) { p.push(emission{snapshot: s}) }
func (p *pipeline) event(ev *domain.Event)      { p.push(emission{event: ev}) }

func (p *pipeline) push(item emission) {
	if len(p.emitters) == 0 {
		return
	}
	p.mu.Lock()
	p.items = append(p.items, item)
	p.mu.Unlock()
	p.ready.Signal()
}

// close stops accepting work; the worker returns after flushing.
func (p *pipeline) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.ready.Broadcast()
}

// work delivers queued items, in order, until the queue is closed and empty.
func (p *pipeline) work(ctx context.Context) error {
	for {
		p.mu.Lock()
		for len(p.items) == 0 && !p.closed {
			p.ready.Wait()
		}
		if len(p.items) == 0 {
			p.mu.Unlock()
			return nil
		}
		batch := p.items
		p.items = nil
		p.mu.Unlock()

		for _, item := range batch {
			for _, em := range p.emitters {
				p.deliver(ctx, em, item)
			}
		}
	}
}

func (p *pipeline) deliver(ctx context.Context, em ports.Emitter, item emission) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("emitter panicked", "emitter", fmt.Sprintf("%T", em), "panic", rec)
		}
	}()

	var err error
	if item.snapshot != nil {
		err = em.SnapshotState(ctx, item.snapshot)
	} else {
		err = em.EmitEvent(ctx, item.event)
	}
	if err != nil {
		p.logger.Warn("emitter failed", "emitter", fmt.Sprintf("%T", em), "err", err)
	}
}
