package policy

import (
	"time"

	"github.com/google/uuid"
)

// CallContext carries the state of exactly one outbound call. It is owned by
// the client for the duration of the call and never shared.
type CallContext struct {
	Service             string
	Endpoint            string
	Method              string
	URL                 string
	CorrelationToken    string
	LegCorrelationToken string
	RawRequest          []byte
	RawResponse         []byte
	HTTPStatus          int
	StartedAt           time.Time

	Cache CachePolicy
	Log   LogPolicy
}

// NewCallContext fills in missing correlation tokens.
func NewCallContext(service, endpoint, correlationToken, legCorrelationToken string) *CallContext {
	if correlationToken == "" {
		correlationToken = uuid.NewString()
	}
	if legCorrelationToken == "" {
		legCorrelationToken = uuid.NewString()
	}
	return &CallContext{
		Service:             service,
		Endpoint:            endpoint,
		CorrelationToken:    correlationToken,
		LegCorrelationToken: legCorrelationToken,
		StartedAt:           time.Now(),
	}
}
