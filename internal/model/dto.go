package model

import "encoding/json"

// CallRequest is the admin API body for invoking an endpoint.
type CallRequest struct {
	Params              map[string]string `json:"params,omitempty"`
	Query               map[string]string `json:"query,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	Body                json.RawMessage   `json:"body,omitempty"`
	CacheKey            string            `json:"cache_key,omitempty"`
	CacheTTLSeconds     *int              `json:"cache_ttl_seconds,omitempty" binding:"omitempty,gte=0"`
	ShouldCache         *bool             `json:"should_cache,omitempty"`
	ResponseChannel     string            `json:"response_channel,omitempty"`
	LegCorrelationToken string            `json:"leg_correlation_token,omitempty"`
}

// CallResponse wraps the upstream response returned by the admin API.
type CallResponse struct {
	Service          string          `json:"service"`
	Endpoint         string          `json:"endpoint"`
	CorrelationToken string          `json:"correlation_token"`
	HTTPStatus       int             `json:"http_status"`
	Cached           bool            `json:"cached"`
	Body             json.RawMessage `json:"body"`
}
