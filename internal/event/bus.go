package event

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/GoPolymarket/extgate/internal/pkg/metrics"
)

// Handler consumes one event. It runs off the publishing goroutine unless the
// bus is inline.
type Handler func(ctx context.Context, ev Event)

// Publisher is the emitting side of the bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) bool
}

// Subscriber is the registration side of the bus.
type Subscriber interface {
	Subscribe(kind Kind, h Handler)
}

// Bus fans events out to the handlers registered for their kind.
//
// Events are spread over a fixed set of shard workers by correlation token, so
// all events of one call are handled in publish order. Publish never blocks:
// when the shard queue is full the event is dropped and counted.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	shards   []chan queued
	closed   bool
	wg       sync.WaitGroup
}

type queued struct {
	ctx context.Context
	ev  Event
}

// NewBus starts workers shard goroutines with queueSize slots each. With
// workers <= 0 the bus is inline and handlers run inside Publish.
func NewBus(workers, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 1000
	}
	b := &Bus{handlers: make(map[Kind][]Handler)}
	for i := 0; i < workers; i++ {
		ch := make(chan queued, queueSize)
		b.shards = append(b.shards, ch)
		b.wg.Add(1)
		go b.run(ch)
	}
	return b
}

func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish hands ev to its shard and returns false if it was dropped. The
// handler context keeps the caller's values but not its cancellation.
func (b *Bus) Publish(ctx context.Context, ev Event) bool {
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		metrics.EventsDropped.WithLabelValues(ev.Kind.String()).Inc()
		return false
	}
	if len(b.shards) == 0 {
		b.dispatch(ctx, ev)
		return true
	}

	select {
	case b.shards[b.shardFor(ev.CorrelationToken)] <- queued{ctx: ctx, ev: ev}:
		return true
	default:
		metrics.EventsDropped.WithLabelValues(ev.Kind.String()).Inc()
		logger.Warn("Event queue full, dropping event", "kind", ev.Kind.String(), "service", ev.Service, "correlation_token", ev.CorrelationToken)
		return false
	}
}

// Close stops accepting events and waits until queued ones are handled.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.shards {
		close(ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) run(ch <-chan queued) {
	defer b.wg.Done()
	for q := range ch {
		b.mu.RLock()
		handlers := b.handlers[q.ev.Kind]
		b.mu.RUnlock()
		for _, h := range handlers {
			b.invoke(q.ctx, h, q.ev)
		}
	}
}

// dispatch runs handlers inline; the caller holds the read lock.
func (b *Bus) dispatch(ctx context.Context, ev Event) {
	for _, h := range b.handlers[ev.Kind] {
		b.invoke(ctx, h, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			apperrors.Report(ctx, apperrors.New(apperrors.ErrInternal, "event handler panicked", fmt.Errorf("%v", r)),
				"Event handler panicked", "kind", ev.Kind.String(), "service", ev.Service)
		}
	}()
	h(ctx, ev)
}

func (b *Bus) shardFor(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(len(b.shards)))
}
