package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoPolymarket/extgate/internal/event"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/GoPolymarket/extgate/internal/pkg/metrics"
)

// Route names the stores one service's events are persisted to. A nil store
// disables that phase.
type Route struct {
	Requests  Store
	Responses Store
}

// Pipeline persists request_sent and response_received events. It runs on the
// bus workers, after the originating call has returned, so every failure is
// reported and dropped.
type Pipeline struct {
	mu     sync.RWMutex
	routes map[string]Route
}

func NewPipeline() *Pipeline {
	return &Pipeline{routes: make(map[string]Route)}
}

// Route registers the stores of service, replacing any earlier route.
func (p *Pipeline) Route(service string, r Route) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[service] = r
}

// Subscribe binds the pipeline handlers to bus.
func (p *Pipeline) Subscribe(bus event.Subscriber) {
	bus.Subscribe(event.KindRequestSent, p.OnRequestSent)
	bus.Subscribe(event.KindResponseReceived, p.OnResponseReceived)
}

func (p *Pipeline) OnRequestSent(ctx context.Context, ev event.Event) {
	r, ok := p.route(ev.Service)
	if !ok {
		return
	}
	p.persist(ctx, ev, r.Requests, ev.Payload.Result.Request)
}

func (p *Pipeline) OnResponseReceived(ctx context.Context, ev event.Event) {
	r, ok := p.route(ev.Service)
	if !ok {
		return
	}
	p.persist(ctx, ev, r.Responses, ev.Payload.Result.Response)
}

func (p *Pipeline) route(service string) (Route, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.routes[service]
	if !ok {
		logger.Debug("No audit route for service", "service", service)
	}
	return r, ok
}

func (p *Pipeline) persist(ctx context.Context, ev event.Event, store Store, sec *event.Section) {
	if store == nil {
		return
	}
	name := store.Name()
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, ev, name, fmt.Errorf("panic: %v", r))
		}
	}()

	if sec == nil {
		p.fail(ctx, ev, name, fmt.Errorf("%s event without %s section", ev.Kind, sectionName(ev.Kind)))
		return
	}

	data := make(map[string]any, len(sec.Integration)+2)
	for k, v := range sec.Integration {
		data[k] = v
	}
	if _, ok := data[FieldService]; !ok {
		data[FieldService] = ev.Service
	}
	if _, ok := data[FieldEndpoint]; !ok {
		data[FieldEndpoint] = ev.Endpoint
	}

	if err := store.Create(ctx, Filter(store.Fields(), data)); err != nil {
		p.fail(ctx, ev, name, err)
		return
	}
	metrics.AuditRecords.WithLabelValues(name, "persisted").Inc()
}

func (p *Pipeline) fail(ctx context.Context, ev event.Event, store string, err error) {
	metrics.AuditRecords.WithLabelValues(store, "failed").Inc()
	apperrors.Report(ctx, apperrors.New(apperrors.ErrAuditPersistence, "audit record not persisted", err),
		"Audit persistence failed",
		"store", store,
		"kind", ev.Kind.String(),
		"service", ev.Service,
		"correlation_token", ev.CorrelationToken,
	)
}

func sectionName(k event.Kind) string {
	if k == event.KindRequestSent {
		return "request"
	}
	return "response"
}
