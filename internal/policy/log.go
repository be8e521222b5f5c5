package policy

import (
	"context"
	"time"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/event"
)

// Canonical integration field names of the request and response payloads.
const (
	FieldAPIOperation        = "api_operation"
	FieldURL                 = "url"
	FieldRaw                 = "raw"
	FieldCorrelationToken    = "correlation_token"
	FieldLegCorrelationToken = "leg_correlation_token"
	FieldHTTPStatus          = "http_status"
)

// ChannelSink receives one-line diagnostics for operational tailing.
type ChannelSink interface {
	Write(ctx context.Context, channel, message string, fields map[string]any)
}

// LogPolicy is the resolved logging decision for one endpoint.
type LogPolicy struct {
	bus       event.Publisher
	sink      ChannelSink
	redactor  Redactor
	service   string
	endpoint  string
	operation string
	enabled   bool
	requests  bool
	responses bool
	channel   string
}

// ResolveLog merges the global, service and endpoint levels. The overall flag
// gates both phases; the channel is only resolved when responses are logged.
func ResolveLog(global config.PolicyLogging, d *descriptor.Descriptor, e *descriptor.EndpointSpec, bus event.Publisher, sink ChannelSink) LogPolicy {
	svc := d.Logging
	var ep descriptor.LogSettings
	p := LogPolicy{
		bus:     bus,
		sink:    sink,
		service: d.Key,
	}
	if e != nil {
		p.endpoint = e.Name
		p.operation = e.OperationName()
		if e.Logging != nil {
			ep = *e.Logging
		}
	}
	p.redactor = NewRedactor(append(append([]string{}, svc.RedactKeys...), ep.RedactKeys...)...)

	p.enabled = AndChain(global.ShouldLog, svc.ShouldLog, ep.ShouldLog)
	p.requests = p.enabled && AndChain(global.ShouldLogRequests, svc.ShouldLogRequests, ep.ShouldLogRequests)
	p.responses = p.enabled && AndChain(global.ShouldLogResponses, svc.ShouldLogResponses, ep.ShouldLogResponses)
	if p.responses {
		p.channel = Override(svc.ResponseChannel, ep.ResponseChannel)
	}
	return p
}

// WithChannel applies a call-level channel. Empty keeps the resolved one.
func (p LogPolicy) WithChannel(channel string) LogPolicy {
	if p.responses {
		p.channel = Override(p.channel, channel)
	}
	return p
}

func (p LogPolicy) Enabled() bool            { return p.enabled }
func (p LogPolicy) ShouldLogRequests() bool  { return p.requests }
func (p LogPolicy) ShouldLogResponses() bool { return p.responses }
func (p LogPolicy) Channel() string          { return p.channel }
func (p LogPolicy) Operation() string        { return p.operation }

// BuildRequestPayload assembles the canonical request fields.
func (p LogPolicy) BuildRequestPayload(cc *CallContext) map[string]any {
	return map[string]any{
		FieldAPIOperation:        p.operation,
		FieldURL:                 cc.URL,
		FieldRaw:                 p.redactor.Redact(cc.RawRequest),
		FieldCorrelationToken:    cc.CorrelationToken,
		FieldLegCorrelationToken: cc.LegCorrelationToken,
	}
}

// BuildResponsePayload assembles the canonical response fields.
func (p LogPolicy) BuildResponsePayload(cc *CallContext) map[string]any {
	return map[string]any{
		FieldRaw:                 p.redactor.Redact(cc.RawResponse),
		FieldCorrelationToken:    cc.CorrelationToken,
		FieldLegCorrelationToken: cc.LegCorrelationToken,
		FieldHTTPStatus:          cc.HTTPStatus,
	}
}

// EmitRequest publishes a request_sent event when request logging is on.
// It reports whether the event was handed to the bus.
func (p LogPolicy) EmitRequest(ctx context.Context, cc *CallContext) bool {
	if !p.requests || p.bus == nil {
		return false
	}
	return p.bus.Publish(ctx, event.Event{
		Kind:             event.KindRequestSent,
		Service:          p.service,
		Endpoint:         p.endpoint,
		CorrelationToken: cc.CorrelationToken,
		OccurredAt:       time.Now().UTC(),
		Payload:          event.RequestPayload(p.BuildRequestPayload(cc)),
	})
}

// EmitResponse publishes a response_received event when response logging is
// on.
func (p LogPolicy) EmitResponse(ctx context.Context, cc *CallContext) bool {
	if !p.responses || p.bus == nil {
		return false
	}
	return p.bus.Publish(ctx, event.Event{
		Kind:             event.KindResponseReceived,
		Service:          p.service,
		Endpoint:         p.endpoint,
		CorrelationToken: cc.CorrelationToken,
		OccurredAt:       time.Now().UTC(),
		Payload:          event.ResponsePayload(p.BuildResponsePayload(cc)),
	})
}

// LogToChannel writes a one-line diagnostic of the response to the resolved
// channel. It does nothing when no channel is resolved.
func (p LogPolicy) LogToChannel(ctx context.Context, cc *CallContext) {
	if p.channel == "" || p.sink == nil {
		return
	}
	p.sink.Write(ctx, p.channel, p.operation, map[string]any{
		FieldCorrelationToken:    cc.CorrelationToken,
		FieldLegCorrelationToken: cc.LegCorrelationToken,
		FieldRaw:                 p.redactor.Redact(cc.RawResponse),
		FieldHTTPStatus:          cc.HTTPStatus,
	})
}
