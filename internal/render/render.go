// Package render turns an event into the JSON body posted for a rule.
//
// RenderPlain and RenderEnhanced are pure; Renderer.Render is the single
// point that picks between them and supplies the clock and enrichment.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/activitygate/internal/enrich"
	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

const (
	unknownContact = "Unknown"
	undetectedSim  = "undetected"
	pushSim        = "notification"
)

// Event names used by enhanced payloads.
const (
	EventSMSReceived  = "sms_received"
	EventCallReceived = "call_received"
	EventPushReceived = "push_notification_received"
)

var errUnsupportedEvent = errors.New("unsupported event type")

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func simName(name string) string {
	if name == "" {
		return undetectedSim
	}
	return name
}

func contactName(name string) string {
	if name == "" {
		return unknownContact
	}
	return name
}

// RenderPlain substitutes the event's tokens into rule.Template.
// Replacement is literal and not JSON-aware; unknown %x% sequences are left
// alone and the result is returned without validation.
func RenderPlain(rule rules.Rule, ev events.Event, now time.Time) string {
	var pairs []string
	switch e := ev.(type) {
	case events.SMSEvent:
		pairs = []string{
			"%from%", e.From,
			"%text%", e.Text,
			"%sim%", simName(e.SimSlotName),
			"%sentStamp%", millis(e.SentAt),
			"%receivedStamp%", millis(now),
		}
	case events.CallEvent:
		pairs = []string{
			"%from%", e.From,
			"%contact%", contactName(e.ContactName),
			"%timestamp%", millis(e.ReceivedAt),
			"%duration%", "0",
			"%sentStamp%", millis(e.ReceivedAt),
			"%receivedStamp%", millis(now),
			"%sim%", simName(e.SimSlotName),
		}
	case events.PushEvent:
		pairs = []string{
			"%from%", e.PackageName,
			"%text%", e.FullText,
			"%title%", e.Title,
			"%content%", e.Content,
			"%package%", e.PackageName,
			"%sentStamp%", millis(e.ReceivedAt),
			"%receivedStamp%", millis(now),
			"%sim%", pushSim,
		}
	default:
		return rule.Template
	}
	return strings.NewReplacer(pairs...).Replace(rule.Template)
}

// Payload is the structured body of an enhanced delivery.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp int64          `json:"timestamp"`
	DeviceID  string         `json:"device_id"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
}

// RenderEnhanced builds the structured payload for ev. device_info is added
// only when the rule selects at least one section and info has it.
func RenderEnhanced(rule rules.Rule, ev events.Event, info enrich.Info, deviceID string, now time.Time) (string, error) {
	p := Payload{
		Timestamp: ev.OccurredAt().UnixMilli(),
		DeviceID:  deviceID,
	}

	switch e := ev.(type) {
	case events.SMSEvent:
		p.Event = EventSMSReceived
		p.Message = "SMS received from " + e.From
		p.Data = map[string]any{
			"from":          e.From,
			"text":          e.Text,
			"sim":           simName(e.SimSlotName),
			"sentStamp":     e.SentAt.UnixMilli(),
			"receivedStamp": now.UnixMilli(),
		}
	case events.CallEvent:
		p.Event = EventCallReceived
		p.Message = "Incoming call from " + e.From
		p.Data = map[string]any{
			"from":          e.From,
			"contact":       contactName(e.ContactName),
			"timestamp":     e.ReceivedAt.UnixMilli(),
			"duration":      0,
			"sentStamp":     e.ReceivedAt.UnixMilli(),
			"receivedStamp": now.UnixMilli(),
			"sim":           simName(e.SimSlotName),
		}
	case events.PushEvent:
		p.Event = EventPushReceived
		p.Message = "Push notification received from " + e.PackageName
		p.Data = map[string]any{
			"from":          e.PackageName,
			"package":       e.PackageName,
			"title":         e.Title,
			"content":       e.Content,
			"text":          e.FullText,
			"sentStamp":     e.ReceivedAt.UnixMilli(),
			"receivedStamp": now.UnixMilli(),
			"sim":           pushSim,
		}
	default:
		return "", errUnsupportedEvent
	}

	if deviceInfo := enrich.Filter(info, FlagsOf(rule)); deviceInfo != nil {
		p.Data["device_info"] = deviceInfo
	}

	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FlagsOf extracts the enrichment selection of a rule.
func FlagsOf(rule rules.Rule) enrich.Flags {
	return enrich.Flags{
		DeviceInfo:  rule.IncludeDeviceInfo,
		SimInfo:     rule.IncludeSimInfo,
		NetworkInfo: rule.IncludeNetworkInfo,
		AppConfig:   rule.IncludeAppConfig,
	}
}

// Renderer composes the two render paths.
type Renderer struct {
	provider enrich.Provider
	deviceID string
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock overrides the render-time clock.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// NewRenderer creates a Renderer. provider may be nil, in which case enhanced
// payloads never carry device_info.
func NewRenderer(provider enrich.Provider, deviceID string, log zerolog.Logger, opts ...Option) *Renderer {
	r := &Renderer{
		provider: provider,
		deviceID: deviceID,
		now:      time.Now,
		log:      log.With().Str("component", "render").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the body for rule and ev. It never fails: any problem on the
// enhanced path falls back to RenderPlain.
func (r *Renderer) Render(ctx context.Context, rule rules.Rule, ev events.Event) string {
	now := r.now()
	if !rule.EnhancedDataEnabled {
		return RenderPlain(rule, ev, now)
	}

	var info enrich.Info
	if rule.WantsEnrichment() && r.provider != nil {
		collected, err := r.provider.Collect(ctx)
		if err != nil {
			r.log.Warn().Err(err).Str("rule_key", rule.Key).Msg("enrichment failed, using plain template")
			return RenderPlain(rule, ev, now)
		}
		info = collected
	}

	body, err := RenderEnhanced(rule, ev, info, r.deviceID, now)
	if err != nil {
		r.log.Warn().Err(err).Str("rule_key", rule.Key).Msg("enhanced payload failed, using plain template")
		return RenderPlain(rule, ev, now)
	}
	return body
}
