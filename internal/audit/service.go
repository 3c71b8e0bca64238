// Package audit records changes made to forwarding rules through the admin API.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

// Action constants for audit logging
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionToggled = "toggled"
	ActionTested  = "tested"
)

// Status constants for audit logging
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

const writeTimeout = 5 * time.Second

// redactedHeaders are header names whose values never reach the audit trail.
var redactedHeaders = []string{"authorization", "proxy-authorization", "cookie", "x-api-key", "token", "secret"}

// Source represents request metadata
type Source struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// Event is one audited change to a rule.
type Event struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	RequestID    string         `json:"request_id,omitempty"`
	Source       Source         `json:"source"`
	Action       string         `json:"action"`
	RuleKey      string         `json:"rule_key"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Changes      map[string]any `json:"changes,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Service writes audit events asynchronously through a bounded buffer.
// Logging never blocks the request; events are dropped when the buffer is full.
type Service struct {
	sink   Sink
	now    func() time.Time
	log    zerolog.Logger
	queue  chan Event
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// NewService creates a Service and starts its background writer.
func NewService(sink Sink, log zerolog.Logger, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &Service{
		sink:   sink,
		now:    time.Now,
		log:    log.With().Str("component", "audit").Logger(),
		queue:  make(chan Event, queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Service) worker() {
	defer close(s.done)
	for {
		select {
		case event := <-s.queue:
			s.write(event)
		case <-s.stopCh:
			for {
				select {
				case event := <-s.queue:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.sink.Write(ctx, event); err != nil {
		s.log.Error().Err(err).Str("rule_key", event.RuleKey).Msg("failed to write audit event")
	}
}

// Close stops the writer after draining queued events. It is safe to call
// more than once.
func (s *Service) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
	})
	<-s.done
	return nil
}

// Log queues event. Missing IDs and timestamps are filled in and rule
// states are redacted before queueing.
func (s *Service) Log(event Event) {
	if s.closed.Load() {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	event.BeforeState = Redact(event.BeforeState)
	event.AfterState = Redact(event.AfterState)
	if event.Changes == nil && (event.BeforeState != nil || event.AfterState != nil) {
		event.Changes = ComputeChanges(event.BeforeState, event.AfterState)
	}

	select {
	case s.queue <- event:
	default:
		s.log.Warn().Str("rule_key", event.RuleKey).Str("action", event.Action).Msg("audit queue full, dropping event")
	}
}

// RuleState converts a rule into the map form stored in audit events.
func RuleState(r *rules.Rule) map[string]any {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// Redact returns a copy of a rule state with credential header values
// replaced. The headers field is a JSON object literal; when it does not
// parse it is dropped entirely.
func Redact(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}

	literal, ok := out["headers"].(string)
	if !ok {
		return out
	}
	var headers map[string]any
	if err := json.Unmarshal([]byte(literal), &headers); err != nil {
		out["headers"] = "[REDACTED]"
		return out
	}
	for name := range headers {
		if isSensitiveHeader(name) {
			headers[name] = "[REDACTED]"
		}
	}
	b, _ := json.Marshal(headers)
	out["headers"] = string(b)
	return out
}

func isSensitiveHeader(name string) bool {
	name = strings.ToLower(name)
	for _, s := range redactedHeaders {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// ComputeChanges computes the difference between before and after states
func ComputeChanges(before, after map[string]any) map[string]any {
	if before == nil && after == nil {
		return nil
	}
	if before == nil {
		before = make(map[string]any)
	}
	if after == nil {
		after = make(map[string]any)
	}

	changes := make(map[string]any)
	for key, afterVal := range after {
		beforeVal, existedBefore := before[key]
		beforeJSON, _ := json.Marshal(beforeVal)
		afterJSON, _ := json.Marshal(afterVal)
		if !existedBefore || string(beforeJSON) != string(afterJSON) {
			changes[key] = map[string]any{"before": beforeVal, "after": afterVal}
		}
	}
	for key, beforeVal := range before {
		if _, existsAfter := after[key]; !existsAfter {
			changes[key] = map[string]any{"before": beforeVal, "after": nil}
		}
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}
