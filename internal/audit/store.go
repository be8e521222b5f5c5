package audit

import (
	"context"
	"time"

	"github.com/GoPolymarket/extgate/internal/policy"
)

// Columns added by the pipeline from the event envelope.
const (
	FieldService  = "service"
	FieldEndpoint = "endpoint"
)

var (
	// RequestFields is the persistable field set of the request stores.
	RequestFields = []string{
		FieldService,
		FieldEndpoint,
		policy.FieldAPIOperation,
		policy.FieldURL,
		policy.FieldRaw,
		policy.FieldCorrelationToken,
		policy.FieldLegCorrelationToken,
	}
	// ResponseFields is the persistable field set of the response stores.
	ResponseFields = []string{
		FieldService,
		FieldEndpoint,
		policy.FieldRaw,
		policy.FieldCorrelationToken,
		policy.FieldLegCorrelationToken,
		policy.FieldHTTPStatus,
	}
)

// Store is a destination for audit records. Fields declares the keys Create
// accepts; anything else in a payload is never persisted.
type Store interface {
	Name() string
	Fields() []string
	Create(ctx context.Context, record map[string]any) error
}

// Record is one persisted row as read back from a store.
type Record map[string]any

// Query selects records for the admin surface. Zero values match everything.
type Query struct {
	Service          string
	CorrelationToken string
	Limit            int
	From             *time.Time
	To               *time.Time
}

// Lister is implemented by stores that can be read back.
type Lister interface {
	List(ctx context.Context, q Query) ([]Record, error)
}

// Pruner is implemented by stores that support retention.
type Pruner interface {
	Prune(ctx context.Context, service string, cutoff time.Time) (int64, error)
}

// Filter restricts data to fields. Declared fields missing from data are kept
// with a nil value.
func Filter(fields []string, data map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = data[f]
	}
	return out
}
