// Package descriptor loads the static configuration of an external service
// (web service settings, endpoint table and service-level policy settings)
// into typed values once at startup.
//
// The service level is where caching and logging are opted into. An absent
// should_cache or should_log flag on a service loads as false, so it does not
// inherit an enabled global default; a service must set the flag to use the
// concern. Absent endpoint flags stay nil and inherit from the service.
package descriptor

import (
	"net/http"
	"strings"
	"time"
)

const (
	DefaultContentType  = "application/json"
	DefaultAPIKeyHeader = "X-API-Key"
	DefaultPruneDays    = 60
)

// Descriptor is the immutable configuration of one external service.
type Descriptor struct {
	Key               string `validate:"required"`
	BaseURL           string `validate:"omitempty,url"`
	ConnectTimeout    *time.Duration
	Timeout           *time.Duration
	Credentials       Credentials
	Headers           http.Header
	AcceptContentType string
	Endpoints         map[string]*EndpointSpec `validate:"dive"`

	Caching CacheSettings
	Logging LogSettings
	Pruning PruneSettings
}

type Credentials struct {
	Username     string
	Password     string
	APIKey       string
	APIKeyHeader string
}

// EndpointSpec is one named remote operation. Nil Caching/Logging means the
// endpoint inherits the service level entirely.
type EndpointSpec struct {
	Name      string `validate:"required"`
	Path      string
	Method    string `validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Operation string
	Caching   *CacheSettings
	Logging   *LogSettings
}

// OperationName returns the configured operation identifier, or the endpoint
// name when none is configured.
func (e *EndpointSpec) OperationName() string {
	if e == nil {
		return ""
	}
	if e.Operation != "" {
		return e.Operation
	}
	return e.Name
}

// CacheSettings is one level of cache configuration. A nil ShouldCache
// inherits from the level above.
type CacheSettings struct {
	ShouldCache *bool
	Key         string
	TTL         *time.Duration
}

// LogSettings is one level of logging configuration.
type LogSettings struct {
	ShouldLog          *bool
	ShouldLogRequests  *bool
	ShouldLogResponses *bool
	ResponseChannel    string
	RequestStore       string
	ResponseStore      string
	RedactKeys         []string
}

// PruneSettings is the retention contract read by the pruning job.
type PruneSettings struct {
	ShouldPrune          bool
	ShouldPruneRequests  bool
	ShouldPruneResponses bool
	RequestDays          int `validate:"gte=1"`
	ResponseDays         int `validate:"gte=1"`
}

// PruneRequests reports whether request audit rows should be pruned.
func (p PruneSettings) PruneRequests() bool {
	return p.ShouldPrune && p.ShouldPruneRequests
}

// PruneResponses reports whether response audit rows should be pruned.
func (p PruneSettings) PruneResponses() bool {
	return p.ShouldPrune && p.ShouldPruneResponses
}

func (p PruneSettings) RequestRetention() time.Duration {
	return time.Duration(p.RequestDays) * 24 * time.Hour
}

func (p PruneSettings) ResponseRetention() time.Duration {
	return time.Duration(p.ResponseDays) * 24 * time.Hour
}

// Endpoint returns the endpoint spec for name, or nil when the service has no
// such endpoint. Names are matched case-insensitively since the config source
// folds key case.
func (d *Descriptor) Endpoint(name string) *EndpointSpec {
	if d == nil {
		return nil
	}
	return d.Endpoints[strings.ToLower(name)]
}

// EndpointNames lists the configured endpoints.
func (d *Descriptor) EndpointNames() []string {
	names := make([]string, 0, len(d.Endpoints))
	for name := range d.Endpoints {
		names = append(names, name)
	}
	return names
}
