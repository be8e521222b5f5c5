package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/event"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/GoPolymarket/extgate/internal/pkg/metrics"
	"github.com/GoPolymarket/extgate/internal/policy"
)

// Client calls the endpoints of one external service. Policies are resolved
// once in NewClient and only read afterwards, so a Client is safe for
// concurrent calls.
type Client struct {
	desc      *descriptor.Descriptor
	transport Transport
	processor ResponseProcessor
	cache     policy.CacheStore
	bus       event.Publisher
	sink      policy.ChannelSink
	defaults  config.PolicyConfig

	caches map[string]policy.CachePolicy
	logs   map[string]policy.LogPolicy
}

type Option func(*Client)

func WithTransport(t Transport) Option { return func(c *Client) { c.transport = t } }

func WithProcessor(p ResponseProcessor) Option { return func(c *Client) { c.processor = p } }

func WithCacheStore(s policy.CacheStore) Option { return func(c *Client) { c.cache = s } }

func WithBus(b event.Publisher) Option { return func(c *Client) { c.bus = b } }

func WithChannels(s policy.ChannelSink) Option { return func(c *Client) { c.sink = s } }

// WithDefaults sets the global level of the policy chain.
func WithDefaults(d config.PolicyConfig) Option { return func(c *Client) { c.defaults = d } }

// CallOptions are the call-level settings. Zero values inherit.
type CallOptions struct {
	// Params fill {name} placeholders in the endpoint path and cache keys.
	Params  map[string]string
	Query   url.Values
	Headers map[string]string
	Body    []byte

	CacheKey        string
	CacheTTL        *time.Duration
	ShouldCache     *bool
	ResponseChannel string

	CorrelationToken    string
	LegCorrelationToken string
}

func NewClient(desc *descriptor.Descriptor, opts ...Option) (*Client, error) {
	if desc == nil {
		return nil, apperrors.NewConfiguration("service descriptor is required", nil)
	}
	c := &Client{
		desc:      desc,
		processor: DefaultProcessor{},
		caches:    make(map[string]policy.CachePolicy, len(desc.Endpoints)),
		logs:      make(map[string]policy.LogPolicy, len(desc.Endpoints)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(desc)
	}
	for name, e := range desc.Endpoints {
		c.caches[name] = policy.ResolveCache(c.defaults.Caching, desc, e, c.cache)
		c.logs[name] = policy.ResolveLog(c.defaults.Logging, desc, e, c.bus, c.sink)
	}
	return c, nil
}

func (c *Client) Descriptor() *descriptor.Descriptor { return c.desc }

// Policies returns the resolved policies of endpoint. ok is false for an
// unknown endpoint.
func (c *Client) Policies(endpoint string) (policy.CachePolicy, policy.LogPolicy, bool) {
	e := c.desc.Endpoint(endpoint)
	if e == nil {
		return policy.CachePolicy{}, policy.LogPolicy{}, false
	}
	return c.caches[e.Name], c.logs[e.Name], true
}

// Call runs one outbound call of endpoint. A cache hit returns the cached
// body without touching the transport or emitting events. Otherwise the
// outcome is classified by the ResponseProcessor before the response event is
// emitted, and only a successful outcome is cached.
func (c *Client) Call(ctx context.Context, endpoint string, opts CallOptions) (*Response, error) {
	e := c.desc.Endpoint(endpoint)
	if e == nil {
		return nil, apperrors.NewUnknownEndpoint(c.desc.Key, endpoint)
	}

	req, err := c.buildRequest(e, opts)
	if err != nil {
		return nil, err
	}

	cc := policy.NewCallContext(c.desc.Key, e.Name, opts.CorrelationToken, opts.LegCorrelationToken)
	cc.Cache = c.caches[e.Name].WithParams(opts.Params).WithCall(opts.ShouldCache)
	cc.Log = c.logs[e.Name].WithChannel(opts.ResponseChannel)
	cacheKey, _ := policy.RenderKey(opts.CacheKey, opts.Params)

	if body, ok := cc.Cache.Get(ctx, cacheKey); ok {
		metrics.CallsTotal.WithLabelValues(cc.Service, cc.Endpoint, "cache_hit").Inc()
		return &Response{StatusCode: http.StatusOK, Body: body, Cached: true, CorrelationToken: cc.CorrelationToken}, nil
	}

	cc.Method = req.Method
	cc.URL = req.URL
	cc.RawRequest = req.Body

	cc.Log.EmitRequest(ctx, cc)

	start := time.Now()
	raw, err := c.transport.Do(ctx, req)
	metrics.CallLatency.WithLabelValues(cc.Service, cc.Endpoint).Observe(time.Since(start).Seconds())
	if raw != nil {
		cc.HTTPStatus = raw.StatusCode
		cc.RawResponse = raw.Body
	}

	resp, err := c.processor.Process(ctx, cc, raw, err)
	if err == nil && resp == nil {
		err = apperrors.New(apperrors.ErrInternal,
			fmt.Sprintf("%s/%s: response processor returned no response", cc.Service, cc.Endpoint), nil)
	}

	// The events carry the upstream exchange as received, whatever the
	// processor made of it.
	if raw != nil {
		cc.Log.EmitResponse(ctx, cc)
		cc.Log.LogToChannel(ctx, cc)
	}

	if resp != nil {
		resp.CorrelationToken = cc.CorrelationToken
	}
	if err != nil {
		metrics.CallsTotal.WithLabelValues(cc.Service, cc.Endpoint, strings.ToLower(string(apperrors.TypeOf(err)))).Inc()
		logger.Warn("Outbound call failed",
			"service", cc.Service,
			"endpoint", cc.Endpoint,
			"correlation_token", cc.CorrelationToken,
			"http_status", cc.HTTPStatus,
			"error", err,
		)
		return resp, err
	}

	cc.Cache.Put(ctx, resp.Body, opts.CacheTTL, cacheKey)
	metrics.CallsTotal.WithLabelValues(cc.Service, cc.Endpoint, "ok").Inc()
	return resp, nil
}

// buildRequest fails with an invalid request error when a path placeholder
// has no param.
func (c *Client) buildRequest(e *descriptor.EndpointSpec, opts CallOptions) (*Request, error) {
	escaped := make(map[string]string, len(opts.Params))
	for k, v := range opts.Params {
		escaped[k] = url.PathEscape(v)
	}
	path, ok := policy.RenderKey(e.Path, escaped)
	if !ok {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("%s/%s: missing path params in %s", c.desc.Key, e.Name, e.Path))
	}

	target := strings.TrimRight(c.desc.BaseURL, "/")
	if path != "" {
		target += "/" + strings.TrimLeft(path, "/")
	}
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + opts.Query.Encode()
	}

	header := c.desc.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Accept") == "" && c.desc.AcceptContentType != "" {
		header.Set("Accept", c.desc.AcceptContentType)
	}
	for k, v := range opts.Headers {
		header.Set(k, v)
	}

	creds := c.desc.Credentials
	if creds.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
		header.Set("Authorization", "Basic "+token)
	}
	if creds.APIKey != "" {
		name := creds.APIKeyHeader
		if name == "" {
			name = descriptor.DefaultAPIKeyHeader
		}
		header.Set(name, creds.APIKey)
	}

	return &Request{Method: e.Method, URL: target, Header: header, Body: opts.Body}, nil
}
