package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/GoPolymarket/extgate/internal/middleware"
	"github.com/GoPolymarket/extgate/internal/model"
	"github.com/GoPolymarket/extgate/internal/service"
	"github.com/gin-gonic/gin"
)

const HeaderCache = "X-Cache"

type CallHandler struct {
	registry *service.Registry
}

func NewCallHandler(registry *service.Registry) *CallHandler {
	return &CallHandler{registry: registry}
}

// Call handles POST /v1/services/:service/endpoints/:endpoint.
func (h *CallHandler) Call(c *gin.Context) {
	client, err := h.registry.Lookup(c.Param("service"))
	if err != nil {
		c.Error(err)
		return
	}

	var req model.CallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypeBind)
			return
		}
	}

	opts := service.CallOptions{
		Params:              req.Params,
		Headers:             req.Headers,
		Body:                req.Body,
		CacheKey:            req.CacheKey,
		ShouldCache:         req.ShouldCache,
		ResponseChannel:     req.ResponseChannel,
		CorrelationToken:    middleware.CorrelationID(c),
		LegCorrelationToken: req.LegCorrelationToken,
	}
	if len(req.Query) > 0 {
		opts.Query = url.Values{}
		for k, v := range req.Query {
			opts.Query.Set(k, v)
		}
	}
	if req.CacheTTLSeconds != nil {
		ttl := time.Duration(*req.CacheTTLSeconds) * time.Second
		opts.CacheTTL = &ttl
	}

	resp, err := client.Call(c.Request.Context(), c.Param("endpoint"), opts)
	if err != nil {
		c.Error(err)
		return
	}

	if resp.Cached {
		c.Header(HeaderCache, "HIT")
	} else {
		c.Header(HeaderCache, "MISS")
	}
	c.JSON(http.StatusOK, model.CallResponse{
		Service:          client.Descriptor().Key,
		Endpoint:         c.Param("endpoint"),
		CorrelationToken: resp.CorrelationToken,
		HTTPStatus:       resp.StatusCode,
		Cached:           resp.Cached,
		Body:             rawBody(resp.Body),
	})
}

// rawBody embeds JSON bodies as they are and quotes anything else.
func rawBody(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(b) {
		return b
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
