package webhook

import (
	"encoding/json"
	"time"

	"github.com/TimurManjosov/activitygate/internal/render"
)

// PayloadBuilder provides a fluent API for system webhook payloads, which
// share the enhanced payload shape.
//
// Usage:
//
//	body, err := webhook.NewPayloadBuilder(deviceID, now).
//		Event(webhook.EventSimStatusChanged).
//		Message("SIM status changed to: SIM_READY").
//		With("sim_status", "SIM_READY").
//		JSON()
type PayloadBuilder struct {
	payload render.Payload
}

// NewPayloadBuilder starts a payload stamped with now.
func NewPayloadBuilder(deviceID string, now time.Time) *PayloadBuilder {
	return &PayloadBuilder{
		payload: render.Payload{
			Timestamp: now.UnixMilli(),
			DeviceID:  deviceID,
			Data:      map[string]any{},
		},
	}
}

// Event sets the event name.
func (b *PayloadBuilder) Event(name string) *PayloadBuilder {
	b.payload.Event = name
	return b
}

// Message sets the human readable message.
func (b *PayloadBuilder) Message(msg string) *PayloadBuilder {
	b.payload.Message = msg
	return b
}

// With adds one data field. Empty string values are skipped.
func (b *PayloadBuilder) With(key string, value any) *PayloadBuilder {
	if s, ok := value.(string); ok && s == "" {
		return b
	}
	b.payload.Data[key] = value
	return b
}

// Build returns the payload.
func (b *PayloadBuilder) Build() render.Payload {
	return b.payload
}

// JSON returns the encoded payload.
func (b *PayloadBuilder) JSON() (string, error) {
	data, err := json.Marshal(b.payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
