package event

import (
	"fmt"
	"time"
)

// Kind identifies an event type. Handlers are registered per kind.
type Kind int

const (
	KindRequestSent Kind = iota + 1
	KindResponseReceived
)

func (k Kind) String() string {
	switch k {
	case KindRequestSent:
		return "request_sent"
	case KindResponseReceived:
		return "response_received"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configured event name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "request_sent":
		return KindRequestSent, nil
	case "response_received":
		return KindResponseReceived, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// Event is published once per request phase of an outbound call.
type Event struct {
	Kind             Kind
	Service          string
	Endpoint         string
	CorrelationToken string
	OccurredAt       time.Time
	Payload          Payload
}

// Payload mirrors the {result: {request|response: {integration: {...}}}}
// shape the audit stores read from.
type Payload struct {
	Result Result `json:"result"`
}

type Result struct {
	Request  *Section `json:"request,omitempty"`
	Response *Section `json:"response,omitempty"`
}

type Section struct {
	Integration map[string]any `json:"integration"`
}

func RequestPayload(integration map[string]any) Payload {
	return Payload{Result: Result{Request: &Section{Integration: integration}}}
}

func ResponsePayload(integration map[string]any) Payload {
	return Payload{Result: Result{Response: &Section{Integration: integration}}}
}

// StripRequest returns a copy of p without the request section.
func (p Payload) StripRequest() Payload {
	p.Result.Request = nil
	return p
}

// StripResponse returns a copy of p without the response section.
func (p Payload) StripResponse() Payload {
	p.Result.Response = nil
	return p
}
