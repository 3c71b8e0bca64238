// Package events defines the device activity events that rules are matched against.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

// ErrUnknownType is returned when an envelope names an unsupported event type.
var ErrUnknownType = errors.New("unknown event type")

// Event is one occurrence of a monitored activity.
// Implementations: SMSEvent, CallEvent, PushEvent.
type Event interface {
	// Kind returns the activity type rules must carry to match this event.
	Kind() rules.ActivityType
	// Sender returns the phone number (SMS/call) or package name (push).
	Sender() string
	// Slot returns the 1-based SIM slot reported with the event, or 0 when unknown.
	Slot() int
	// OccurredAt returns the event's own timestamp.
	OccurredAt() time.Time
}

// SMSEvent is an incoming text message.
type SMSEvent struct {
	From        string
	Text        string
	SimSlot     int
	SimSlotName string
	SentAt      time.Time
}

func (e SMSEvent) Kind() rules.ActivityType { return rules.ActivitySMS }
func (e SMSEvent) Sender() string           { return e.From }
func (e SMSEvent) Slot() int                { return e.SimSlot }
func (e SMSEvent) OccurredAt() time.Time    { return e.SentAt }

// CallEvent is an incoming phone call. ContactName is empty when the caller
// is not in the address book.
type CallEvent struct {
	From        string
	ContactName string
	SimSlot     int
	SimSlotName string
	ReceivedAt  time.Time
}

func (e CallEvent) Kind() rules.ActivityType { return rules.ActivityCall }
func (e CallEvent) Sender() string           { return e.From }
func (e CallEvent) Slot() int                { return e.SimSlot }
func (e CallEvent) OccurredAt() time.Time    { return e.ReceivedAt }

// PushEvent is a notification posted by an installed app.
type PushEvent struct {
	PackageName string
	Title       string
	Content     string
	FullText    string
	ReceivedAt  time.Time
}

func (e PushEvent) Kind() rules.ActivityType { return rules.ActivityPush }
func (e PushEvent) Sender() string           { return e.PackageName }
func (e PushEvent) Slot() int                { return 0 }
func (e PushEvent) OccurredAt() time.Time    { return e.ReceivedAt }

// NewPushEvent builds a PushEvent whose FullText is "title: content",
// or whichever part is present.
func NewPushEvent(packageName, title, content string, receivedAt time.Time) PushEvent {
	return PushEvent{
		PackageName: packageName,
		Title:       title,
		Content:     content,
		FullText:    JoinPushText(title, content),
		ReceivedAt:  receivedAt,
	}
}

// JoinPushText joins a notification title and content the way they are shown.
func JoinPushText(title, content string) string {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	switch {
	case title == "":
		return content
	case content == "":
		return title
	default:
		return title + ": " + content
	}
}

// Envelope is the wire form of an event used by the ingest surfaces.
// Timestamps are epoch milliseconds; zero means "now" at decode time.
type Envelope struct {
	Type        string `json:"type"`
	From        string `json:"from,omitempty"`
	Text        string `json:"text,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	SimSlot     int    `json:"simSlot,omitempty"`
	SimSlotName string `json:"simSlotName,omitempty"`
	PackageName string `json:"packageName,omitempty"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	FullText    string `json:"fullText,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// Decode parses an envelope into its Event.
func Decode(data []byte, now time.Time) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	return env.Event(now)
}

// Event converts the envelope into its Event. now is used when Timestamp is 0.
func (env Envelope) Event(now time.Time) (Event, error) {
	at := now
	if env.Timestamp > 0 {
		at = time.UnixMilli(env.Timestamp)
	}

	kind, ok := rules.ParseActivityType(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	switch kind {
	case rules.ActivitySMS:
		return SMSEvent{
			From:        env.From,
			Text:        env.Text,
			SimSlot:     env.SimSlot,
			SimSlotName: env.SimSlotName,
			SentAt:      at,
		}, nil
	case rules.ActivityCall:
		return CallEvent{
			From:        env.From,
			ContactName: env.ContactName,
			SimSlot:     env.SimSlot,
			SimSlotName: env.SimSlotName,
			ReceivedAt:  at,
		}, nil
	default:
		pkg := env.PackageName
		if pkg == "" {
			pkg = env.From
		}
		e := NewPushEvent(pkg, env.Title, env.Content, at)
		if env.FullText != "" {
			e.FullText = env.FullText
		}
		return e, nil
	}
}

// Encode returns the envelope form of e.
func Encode(e Event) Envelope {
	env := Envelope{
		Type:      string(e.Kind()),
		Timestamp: e.OccurredAt().UnixMilli(),
	}
	switch ev := e.(type) {
	case SMSEvent:
		env.From, env.Text = ev.From, ev.Text
		env.SimSlot, env.SimSlotName = ev.SimSlot, ev.SimSlotName
	case CallEvent:
		env.From, env.ContactName = ev.From, ev.ContactName
		env.SimSlot, env.SimSlotName = ev.SimSlot, ev.SimSlotName
	case PushEvent:
		env.PackageName, env.Title, env.Content, env.FullText = ev.PackageName, ev.Title, ev.Content, ev.FullText
	}
	return env
}

// Sample returns a representative event of the given kind, used for test sends.
func Sample(kind rules.ActivityType, now time.Time) Event {
	switch kind {
	case rules.ActivityCall:
		return CallEvent{From: "+1234567890", ContactName: "Test Contact", SimSlot: 1, SimSlotName: "SIM1", ReceivedAt: now}
	case rules.ActivityPush:
		return NewPushEvent("com.example.app", "Test Notification", "This is a test notification", now)
	default:
		return SMSEvent{From: "+1234567890", Text: "Test message", SimSlot: 1, SimSlotName: "SIM1", SentAt: now}
	}
}
