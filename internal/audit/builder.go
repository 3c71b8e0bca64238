package audit

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

// EventBuilder provides a fluent API for constructing audit events.
//
// Usage:
//
//	event := audit.NewEventBuilder(r).
//		ForRule(key).
//		WithAction(audit.ActionUpdated).
//		WithBefore(&old).
//		WithAfter(&saved).
//		Build()
//
//	service.Log(event)
type EventBuilder struct {
	event Event
}

// NewEventBuilder creates a builder carrying the request ID and client of r.
func NewEventBuilder(r *http.Request) *EventBuilder {
	return &EventBuilder{
		event: Event{
			RequestID: middleware.GetReqID(r.Context()),
			Source: Source{
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
			},
			Status: StatusSuccess,
		},
	}
}

// clientIP strips the port from RemoteAddr. RealIP middleware has already
// replaced it with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (b *EventBuilder) ForRule(key string) *EventBuilder {
	b.event.RuleKey = key
	return b
}

func (b *EventBuilder) WithAction(action string) *EventBuilder {
	b.event.Action = action
	return b
}

func (b *EventBuilder) WithBefore(r *rules.Rule) *EventBuilder {
	b.event.BeforeState = RuleState(r)
	return b
}

func (b *EventBuilder) WithAfter(r *rules.Rule) *EventBuilder {
	b.event.AfterState = RuleState(r)
	return b
}

// Failure marks the event as failed and sets an error message.
func (b *EventBuilder) Failure(err error) *EventBuilder {
	b.event.Status = StatusFailure
	if err != nil {
		b.event.ErrorMessage = err.Error()
	}
	return b
}

// Build returns the constructed Event.
func (b *EventBuilder) Build() Event {
	return b.event
}
