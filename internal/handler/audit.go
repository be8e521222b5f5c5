package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/service"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	registry *service.Registry
	stores   map[string]audit.Lister
}

// NewAuditHandler serves the stores in stores, keyed by store name.
func NewAuditHandler(registry *service.Registry, stores map[string]audit.Lister) *AuditHandler {
	return &AuditHandler{registry: registry, stores: stores}
}

// List handles GET /v1/audit/:service/:phase.
func (h *AuditHandler) List(c *gin.Context) {
	client, err := h.registry.Lookup(c.Param("service"))
	if err != nil {
		c.Error(err)
		return
	}

	reqStore, respStore := service.AuditStoreNames(client.Descriptor())
	var name string
	switch c.Param("phase") {
	case "requests":
		name = reqStore
	case "responses":
		name = respStore
	default:
		c.Error(apperrors.NewInvalidRequest("phase must be requests or responses"))
		return
	}
	lister, ok := h.stores[name]
	if !ok {
		c.Error(apperrors.New(apperrors.ErrNotFound, "audit store "+name+" is not readable", nil))
		return
	}

	q := audit.Query{
		Service:          client.Descriptor().Key,
		CorrelationToken: c.Query("correlation_token"),
		Limit:            100,
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			q.Limit = parsed
		}
	}
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		q.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		q.To = &t
	}

	records, err := lister.List(c.Request.Context(), q)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"store": name, "records": records})
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
