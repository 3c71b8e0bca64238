package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogSink writes audit events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink writing to log under the "audit" channel.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("channel", "audit").Logger()}
}

func (s *LogSink) Write(ctx context.Context, e Event) error {
	ev := s.log.Info()
	if e.Status == StatusFailure {
		ev = s.log.Warn().Str("error", e.ErrorMessage)
	}
	ev.Str("audit_id", e.ID).
		Time("occurred_at", e.OccurredAt).
		Str("request_id", e.RequestID).
		Str("ip", e.Source.IPAddress).
		Str("user_agent", e.Source.UserAgent).
		Str("action", e.Action).
		Str("rule_key", e.RuleKey).
		Str("status", e.Status).
		Interface("changes", e.Changes).
		Msg("rule " + e.Action)
	return nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Write(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
