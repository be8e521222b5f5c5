package event

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/GoPolymarket/extgate/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestInlineBusDispatchesByKind(t *testing.T) {
	bus := NewBus(0, 0)
	var reqs, resps recorder
	bus.Subscribe(KindRequestSent, reqs.handle)
	bus.Subscribe(KindResponseReceived, resps.handle)

	assert.True(t, bus.Publish(context.Background(), Event{Kind: KindRequestSent, CorrelationToken: "a"}))
	assert.True(t, bus.Publish(context.Background(), Event{Kind: KindResponseReceived, CorrelationToken: "a"}))

	assert.Len(t, reqs.all(), 1)
	assert.Len(t, resps.all(), 1)
}

func TestBusPreservesOrderPerCorrelationToken(t *testing.T) {
	bus := NewBus(4, 10000)
	var rec recorder
	bus.Subscribe(KindRequestSent, rec.handle)
	bus.Subscribe(KindResponseReceived, rec.handle)

	for i := 0; i < 500; i++ {
		token := fmt.Sprintf("call-%d", i)
		require.True(t, bus.Publish(context.Background(), Event{Kind: KindRequestSent, CorrelationToken: token}))
		require.True(t, bus.Publish(context.Background(), Event{Kind: KindResponseReceived, CorrelationToken: token}))
	}
	bus.Close()

	seenRequest := map[string]bool{}
	events := rec.all()
	require.Len(t, events, 1000)
	for _, ev := range events {
		switch ev.Kind {
		case KindRequestSent:
			seenRequest[ev.CorrelationToken] = true
		case KindResponseReceived:
			assert.True(t, seenRequest[ev.CorrelationToken], "response before request for %s", ev.CorrelationToken)
		}
	}
}

func TestBusDropsWhenQueueFull(t *testing.T) {
	bus := NewBus(1, 1)
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(KindRequestSent, func(context.Context, Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	before := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(KindRequestSent.String()))

	require.True(t, bus.Publish(context.Background(), Event{Kind: KindRequestSent}))
	<-started
	require.True(t, bus.Publish(context.Background(), Event{Kind: KindRequestSent}))
	assert.False(t, bus.Publish(context.Background(), Event{Kind: KindRequestSent}))

	close(block)
	bus.Close()

	after := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(KindRequestSent.String()))
	assert.Equal(t, before+1, after)
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(1, 10)
	var rec recorder
	bus.Subscribe(KindRequestSent, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(KindRequestSent, rec.handle)

	bus.Publish(context.Background(), Event{Kind: KindRequestSent, CorrelationToken: "x"})
	bus.Close()

	assert.Len(t, rec.all(), 1)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := NewBus(2, 10)
	bus.Close()
	bus.Close()
	assert.False(t, bus.Publish(context.Background(), Event{Kind: KindRequestSent}))
}

func TestHandlerContextSurvivesCallerCancel(t *testing.T) {
	bus := NewBus(1, 10)
	var gotErr error
	done := make(chan struct{})
	bus.Subscribe(KindResponseReceived, func(ctx context.Context, _ Event) {
		gotErr = ctx.Err()
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, Event{Kind: KindResponseReceived})
	<-done
	bus.Close()
	assert.NoError(t, gotErr)
}

func TestPayloadStrip(t *testing.T) {
	p := Payload{Result: Result{
		Request:  &Section{Integration: map[string]any{"raw": "req"}},
		Response: &Section{Integration: map[string]any{"raw": "resp"}},
	}}
	assert.Nil(t, p.StripRequest().Result.Request)
	assert.NotNil(t, p.StripRequest().Result.Response)
	assert.Nil(t, p.StripResponse().Result.Response)
	assert.NotNil(t, p.Result.Request, "strip must not mutate the original")
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("response_received")
	require.NoError(t, err)
	assert.Equal(t, KindResponseReceived, k)
	_, err = ParseKind("SomeClass")
	assert.Error(t, err)
}
