package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTimeout        = 30 * time.Second
	maxResponseBytes      = 10 << 20
)

// Request is one outbound HTTP request as built from an endpoint.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the upstream answer, or the cached body on a cache hit.
type Response struct {
	StatusCode       int
	Header           http.Header
	Body             []byte
	Cached           bool
	CorrelationToken string
}

// Transport performs the network exchange. Implementations return an error
// only when no usable HTTP response was received.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport sends requests with the timeouts of one service descriptor.
type HTTPTransport struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPTransport applies the descriptor's connect and read timeouts. Unset
// timeouts use the transport defaults.
func NewHTTPTransport(d *descriptor.Descriptor) *HTTPTransport {
	connect := defaultConnectTimeout
	if d.ConnectTimeout != nil {
		connect = *d.ConnectTimeout
	}
	timeout := defaultTimeout
	if d.Timeout != nil {
		timeout = *d.Timeout
	}

	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
				TLSHandshakeTimeout: connect,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		maxBody: maxResponseBytes,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("cannot build request: %v", err))
	}
	httpReq.Header = req.Header.Clone()

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(raw)) > t.maxBody {
		return nil, apperrors.NewTransport(
			fmt.Sprintf("upstream response exceeds %d bytes (HTTP %d)", t.maxBody, resp.StatusCode), nil)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTransport("upstream timed out", err)
	}
	return apperrors.NewTransport("upstream unreachable", err)
}
