package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/event"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/policy"
	"github.com/GoPolymarket/extgate/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, ev event.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func ratesDescriptor(baseURL string) *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Key:     "rates",
		BaseURL: baseURL,
		Headers: http.Header{
			"Content-Type": {descriptor.DefaultContentType},
			"Accept":       {descriptor.DefaultContentType},
		},
		AcceptContentType: descriptor.DefaultContentType,
		Credentials:       descriptor.Credentials{APIKey: "secret", APIKeyHeader: "X-Api-Token"},
		Endpoints: map[string]*descriptor.EndpointSpec{
			"get_rates": {Name: "get_rates", Path: "/v1/rates/{currency}", Method: http.MethodGet, Operation: "GetRates"},
			"create_quote": {
				Name:    "create_quote",
				Path:    "/v1/quotes",
				Method:  http.MethodPost,
				Caching: &descriptor.CacheSettings{ShouldCache: policy.Bool(false)},
			},
		},
		Caching: descriptor.CacheSettings{ShouldCache: policy.Bool(true), Key: "rates:{currency}", TTL: policy.Seconds(60)},
		Logging: descriptor.LogSettings{
			ShouldLog:          policy.Bool(true),
			ShouldLogRequests:  policy.Bool(true),
			ShouldLogResponses: policy.Bool(true),
			ResponseChannel:    "external-api",
		},
	}
}

type upstream struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
	last   atomic.Pointer[http.Request]
	body   atomic.Pointer[string]
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		s := string(b)
		u.body.Store(&s)
		u.last.Store(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(u.status.Load()))
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(u.Close)
	return u
}

func newTestClient(t *testing.T, desc *descriptor.Descriptor, bus event.Publisher, opts ...Option) *Client {
	t.Helper()
	store := repository.NewMemoryCacheStore(time.Minute)
	t.Cleanup(store.Close)
	opts = append([]Option{WithCacheStore(store), WithBus(bus)}, opts...)
	c, err := NewClient(desc, opts...)
	require.NoError(t, err)
	return c
}

func TestCallUnknownEndpoint(t *testing.T) {
	c := newTestClient(t, ratesDescriptor("http://127.0.0.1:1"), &recorder{})

	_, err := c.Call(context.Background(), "missing", CallOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUnknownEndpoint))
}

func TestCallCacheHitSkipsTransportAndEvents(t *testing.T) {
	up := newUpstream(t)
	rec := &recorder{}
	c := newTestClient(t, ratesDescriptor(up.URL), rec)
	opts := CallOptions{Params: map[string]string{"currency": "EUR"}}

	first, err := c.Call(context.Background(), "get_rates", opts)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, `{"path":"/v1/rates/EUR"}`, string(first.Body))

	second, err := c.Call(context.Background(), "get_rates", opts)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Body, second.Body)
	assert.NotEmpty(t, second.CorrelationToken)

	assert.Equal(t, int32(1), up.hits.Load())
	assert.Equal(t, []event.Kind{event.KindRequestSent, event.KindResponseReceived}, rec.kinds())

	other, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "USD"}})
	require.NoError(t, err)
	assert.False(t, other.Cached, "templated key separates cache entries")
	assert.Equal(t, int32(2), up.hits.Load())
}

func TestCallEndpointDisabledCacheAlwaysSends(t *testing.T) {
	up := newUpstream(t)
	c := newTestClient(t, ratesDescriptor(up.URL), &recorder{})

	for i := 0; i < 2; i++ {
		resp, err := c.Call(context.Background(), "create_quote", CallOptions{Body: []byte(`{"amount":10}`)})
		require.NoError(t, err)
		assert.False(t, resp.Cached)
	}
	assert.Equal(t, int32(2), up.hits.Load())
	assert.Equal(t, `{"amount":10}`, *up.body.Load())
	assert.Equal(t, http.MethodPost, up.last.Load().Method)
}

func TestCallLevelCacheDisable(t *testing.T) {
	up := newUpstream(t)
	c := newTestClient(t, ratesDescriptor(up.URL), &recorder{})
	opts := CallOptions{Params: map[string]string{"currency": "EUR"}, ShouldCache: policy.Bool(false)}

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), "get_rates", opts)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), up.hits.Load())
}

func TestCallBuildsRequest(t *testing.T) {
	up := newUpstream(t)
	desc := ratesDescriptor(up.URL)
	desc.Credentials.Username = "svc"
	desc.Credentials.Password = "pw"
	c := newTestClient(t, desc, &recorder{})

	_, err := c.Call(context.Background(), "get_rates", CallOptions{
		Params:  map[string]string{"currency": "EUR/X"},
		Query:   url.Values{"date": {"2024-01-01"}},
		Headers: map[string]string{"X-Trace": "abc"},
	})
	require.NoError(t, err)

	r := up.last.Load()
	assert.Equal(t, "/v1/rates/EUR%2FX", r.URL.EscapedPath())
	assert.Equal(t, "2024-01-01", r.URL.Query().Get("date"))
	assert.Equal(t, "secret", r.Header.Get("X-Api-Token"))
	assert.Equal(t, "abc", r.Header.Get("X-Trace"))
	assert.Equal(t, descriptor.DefaultContentType, r.Header.Get("Accept"))
	user, pass, ok := r.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "svc", user)
	assert.Equal(t, "pw", pass)
}

func TestCallUpstreamErrorSkipsCacheWrite(t *testing.T) {
	up := newUpstream(t)
	up.status.Store(http.StatusBadGateway)
	rec := &recorder{}
	c := newTestClient(t, ratesDescriptor(up.URL), rec)
	opts := CallOptions{Params: map[string]string{"currency": "EUR"}}

	resp, err := c.Call(context.Background(), "get_rates", opts)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUpstream))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, []event.Kind{event.KindRequestSent, event.KindResponseReceived}, rec.kinds())

	up.status.Store(http.StatusOK)
	resp, err = c.Call(context.Background(), "get_rates", opts)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, int32(2), up.hits.Load())
}

func TestCallTransportErrorEmitsNoResponseEvent(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Do", mock.Anything, mock.AnythingOfType("*service.Request")).
		Return(nil, apperrors.NewTransport("upstream unreachable", errors.New("connection refused"))).Once()
	rec := &recorder{}
	c := newTestClient(t, ratesDescriptor("http://rates.invalid"), rec, WithTransport(tr))

	resp, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "EUR"}})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTransport))
	assert.Equal(t, []event.Kind{event.KindRequestSent}, rec.kinds())
	tr.AssertExpectations(t)
}

func TestCallTimeoutIsTransportError(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	desc := ratesDescriptor(slow.URL)
	timeout := 50 * time.Millisecond
	desc.Timeout = &timeout
	c := newTestClient(t, desc, &recorder{})

	_, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "EUR"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTransport))
}

func TestCustomProcessorRecoversErrors(t *testing.T) {
	up := newUpstream(t)
	up.status.Store(http.StatusNotFound)
	proc := ProcessorFunc(func(_ context.Context, _ *policy.CallContext, resp *Response, err error) (*Response, error) {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &Response{StatusCode: http.StatusOK, Body: []byte(`[]`)}, nil
		}
		return resp, err
	})
	c := newTestClient(t, ratesDescriptor(up.URL), &recorder{}, WithProcessor(proc))

	resp, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "XXX"}})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(resp.Body))
	assert.NotEmpty(t, resp.CorrelationToken)
}

type failingStore struct{ name string }

func (f failingStore) Name() string     { return f.name }
func (f failingStore) Fields() []string { return audit.ResponseFields }
func (f failingStore) Create(context.Context, map[string]any) error {
	return errors.New("audit db unavailable")
}

func TestAuditFailureDoesNotAffectCall(t *testing.T) {
	up := newUpstream(t)
	bus := event.NewBus(2, 10)
	pipeline := audit.NewPipeline()
	pipeline.Route("rates", audit.Route{Requests: failingStore{"requests"}, Responses: failingStore{"responses"}})
	pipeline.Subscribe(bus)
	c := newTestClient(t, ratesDescriptor(up.URL), bus)

	resp, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "EUR"}})
	bus.Close()

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCallPersistsAuditRecords(t *testing.T) {
	up := newUpstream(t)
	bus := event.NewBus(0, 0)
	reqs := repository.NewMemoryAuditStore("requests", audit.RequestFields, 10)
	resps := repository.NewMemoryAuditStore("responses", audit.ResponseFields, 10)
	pipeline := audit.NewPipeline()
	pipeline.Route("rates", audit.Route{Requests: reqs, Responses: resps})
	pipeline.Subscribe(bus)
	c := newTestClient(t, ratesDescriptor(up.URL), bus)

	resp, err := c.Call(context.Background(), "get_rates", CallOptions{
		Params:              map[string]string{"currency": "EUR"},
		CorrelationToken:    "corr-1",
		LegCorrelationToken: "leg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "corr-1", resp.CorrelationToken)

	q := audit.Query{CorrelationToken: "corr-1"}
	reqRecords, err := reqs.List(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, reqRecords, 1)
	assert.Equal(t, "GetRates", reqRecords[0]["api_operation"])
	assert.Equal(t, up.URL+"/v1/rates/EUR", reqRecords[0]["url"])
	assert.Equal(t, "leg-1", reqRecords[0]["leg_correlation_token"])

	respRecords, err := resps.List(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, respRecords, 1)
	assert.Equal(t, http.StatusOK, respRecords[0]["http_status"])
	assert.Equal(t, "get_rates", respRecords[0][audit.FieldEndpoint])
}

func TestGlobalDefaultsDisableEverything(t *testing.T) {
	up := newUpstream(t)
	rec := &recorder{}
	off := policy.Bool(false)
	c := newTestClient(t, ratesDescriptor(up.URL), rec, WithDefaults(config.PolicyConfig{
		Caching: config.PolicyCaching{ShouldCache: off},
		Logging: config.PolicyLogging{ShouldLog: off},
	}))

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "EUR"}})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), up.hits.Load())
	assert.Empty(t, rec.kinds())

	cp, lp, ok := c.Policies("GET_RATES")
	require.True(t, ok)
	assert.False(t, cp.Enabled())
	assert.False(t, lp.Enabled())
}

func TestNewClientRequiresDescriptor(t *testing.T) {
	_, err := NewClient(nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrConfiguration))
}

func TestCallWithoutKeyParamsNeverSharesCache(t *testing.T) {
	var calls atomic.Int32
	users := []string{"alice", "bob"}
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = w.Write([]byte(`{"user":"` + users[(n-1)%2] + `"}`))
	}))
	defer up.Close()
	desc := ratesDescriptor(up.URL)
	desc.Endpoints["profile"] = &descriptor.EndpointSpec{
		Name:    "profile",
		Path:    "/v1/profile",
		Method:  http.MethodGet,
		Caching: &descriptor.CacheSettings{Key: "profile:{user_id}"},
	}
	c := newTestClient(t, desc, &recorder{})

	alice, err := c.Call(context.Background(), "profile", CallOptions{})
	require.NoError(t, err)
	bob, err := c.Call(context.Background(), "profile", CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, `{"user":"alice"}`, string(alice.Body))
	assert.Equal(t, `{"user":"bob"}`, string(bob.Body))
	assert.False(t, bob.Cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallMissingPathParamIsInvalidRequest(t *testing.T) {
	up := newUpstream(t)
	rec := &recorder{}
	c := newTestClient(t, ratesDescriptor(up.URL), rec)

	_, err := c.Call(context.Background(), "get_rates", CallOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
	assert.Equal(t, int32(0), up.hits.Load())
	assert.Empty(t, rec.kinds())
}

func TestCallOversizedResponseIsNotCached(t *testing.T) {
	up := newUpstream(t)
	desc := ratesDescriptor(up.URL)
	tr := NewHTTPTransport(desc)
	tr.maxBody = 8
	c := newTestClient(t, desc, &recorder{}, WithTransport(tr))
	opts := CallOptions{Params: map[string]string{"currency": "EUR"}}

	resp, err := c.Call(context.Background(), "get_rates", opts)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTransport))

	tr.maxBody = maxResponseBytes
	resp, err = c.Call(context.Background(), "get_rates", opts)
	require.NoError(t, err)
	assert.False(t, resp.Cached, "truncated body must not be cached")
	assert.Equal(t, `{"path":"/v1/rates/EUR"}`, string(resp.Body))
	assert.Equal(t, int32(2), up.hits.Load())
}

func TestCallNilProcessorResultIsAnError(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Do", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewTransport("upstream unreachable", errors.New("connection refused")))
	swallow := ProcessorFunc(func(context.Context, *policy.CallContext, *Response, error) (*Response, error) {
		return nil, nil
	})
	c := newTestClient(t, ratesDescriptor("http://rates.invalid"), &recorder{}, WithTransport(tr), WithProcessor(swallow))

	var (
		resp *Response
		err  error
	)
	require.NotPanics(t, func() {
		resp, err = c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "EUR"}})
	})
	assert.Nil(t, resp)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInternal))
}

func TestDefaultProcessorHandlesMissingResponse(t *testing.T) {
	cc := policy.NewCallContext("rates", "get_rates", "", "")
	resp, err := DefaultProcessor{}.Process(context.Background(), cc, nil, nil)
	assert.Nil(t, resp)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTransport))
}

func TestResponseEventFollowsClassification(t *testing.T) {
	up := newUpstream(t)
	up.status.Store(http.StatusNotFound)
	rec := &recorder{}
	var seen []event.Kind
	proc := ProcessorFunc(func(_ context.Context, cc *policy.CallContext, resp *Response, err error) (*Response, error) {
		seen = rec.kinds()
		assert.Equal(t, http.StatusNotFound, cc.HTTPStatus)
		return &Response{StatusCode: http.StatusOK, Body: []byte(`[]`)}, nil
	})
	c := newTestClient(t, ratesDescriptor(up.URL), rec, WithProcessor(proc))

	_, err := c.Call(context.Background(), "get_rates", CallOptions{Params: map[string]string{"currency": "EUR"}})
	require.NoError(t, err)
	assert.Equal(t, []event.Kind{event.KindRequestSent}, seen)
	require.Equal(t, []event.Kind{event.KindRequestSent, event.KindResponseReceived}, rec.kinds())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	integration := rec.events[1].Payload.Result.Response.Integration
	assert.Equal(t, http.StatusNotFound, integration["http_status"])
	assert.Equal(t, `{"path":"/v1/rates/EUR"}`, integration["raw"])
}
