package render

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimurManjosov/activitygate/internal/enrich"
	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

var (
	sentAt = time.UnixMilli(1700000000000)
	nowAt  = time.UnixMilli(1700000005000)
)

func fixedClock() time.Time { return nowAt }

func TestRenderPlain_SMSDefaultTemplate(t *testing.T) {
	rule := rules.New("*", "https://example.com", "")
	ev := events.SMSEvent{From: "+15550001", Text: "hello", SimSlot: 1, SimSlotName: "SIM1", SentAt: sentAt}

	got := RenderPlain(rule, ev, nowAt)
	want := `{"from":"+15550001","text":"hello","sentStamp":1700000000000,"receivedStamp":1700000005000,"sim":"SIM1"}`
	assert.Equal(t, want, got)
}

func TestRenderPlain_SMSUndetectedSim(t *testing.T) {
	rule := rules.Rule{Template: `%sim%`}
	got := RenderPlain(rule, events.SMSEvent{SentAt: sentAt}, nowAt)
	assert.Equal(t, "undetected", got)
}

func TestRenderPlain_CallTokens(t *testing.T) {
	rule := rules.Rule{Template: `%from%|%contact%|%timestamp%|%duration%|%sentStamp%|%receivedStamp%|%sim%|%text%`}
	ev := events.CallEvent{From: "2025551234", ReceivedAt: sentAt}

	got := RenderPlain(rule, ev, nowAt)
	// %text% is not a call token and stays untouched.
	assert.Equal(t, "2025551234|Unknown|1700000000000|0|1700000000000|1700000005000|undetected|%text%", got)
}

func TestRenderPlain_PushTokens(t *testing.T) {
	rule := rules.Rule{Template: `%from%|%text%|%title%|%content%|%package%|%sentStamp%|%receivedStamp%|%sim%`}
	ev := events.NewPushEvent("com.chat", "Alice", "hi", sentAt)

	got := RenderPlain(rule, ev, nowAt)
	assert.Equal(t, "com.chat|Alice: hi|Alice|hi|com.chat|1700000000000|1700000005000|notification", got)
}

func TestRenderPlain_RepeatedAndUnknownTokens(t *testing.T) {
	rule := rules.Rule{Template: `{"a":"%from%","b":"%from%","c":"%nope%"}`}
	got := RenderPlain(rule, events.SMSEvent{From: "x", SentAt: sentAt}, nowAt)
	assert.Equal(t, `{"a":"x","b":"x","c":"%nope%"}`, got)
}

func TestRenderPlain_ValuesAreNotReexpanded(t *testing.T) {
	rule := rules.Rule{Template: `%from%/%text%`}
	got := RenderPlain(rule, events.SMSEvent{From: "%text%", Text: "body", SentAt: sentAt}, nowAt)
	assert.Equal(t, "%text%/body", got)
}

func TestRenderPlain_InvalidJSONReturnedAsIs(t *testing.T) {
	rule := rules.Rule{Template: `{"text":"%text%"}`}
	got := RenderPlain(rule, events.SMSEvent{Text: `say "hi"`, SentAt: sentAt}, nowAt)
	assert.Equal(t, `{"text":"say "hi""}`, got)
}

func TestRenderPlain_Deterministic(t *testing.T) {
	rule := rules.New("*", "https://example.com", "")
	ev := events.SMSEvent{From: "1", Text: "t", SentAt: sentAt}
	assert.Equal(t, RenderPlain(rule, ev, nowAt), RenderPlain(rule, ev, nowAt))
}

func decode(t *testing.T, body string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func TestRenderEnhanced_SMS(t *testing.T) {
	rule := rules.Rule{EnhancedDataEnabled: true}
	body, err := RenderEnhanced(rule, events.SMSEvent{From: "+1555", Text: "hi", SentAt: sentAt}, enrich.Info{}, "dev-1", nowAt)
	require.NoError(t, err)

	p := decode(t, body)
	assert.Equal(t, EventSMSReceived, p.Event)
	assert.Equal(t, int64(1700000000000), p.Timestamp)
	assert.Equal(t, "dev-1", p.DeviceID)
	assert.Equal(t, "SMS received from +1555", p.Message)
	assert.Equal(t, "hi", p.Data["text"])
	assert.Equal(t, float64(1700000005000), p.Data["receivedStamp"])
	assert.NotContains(t, p.Data, "device_info")
}

func TestRenderEnhanced_CallAndPush(t *testing.T) {
	rule := rules.Rule{EnhancedDataEnabled: true}

	body, err := RenderEnhanced(rule, events.CallEvent{From: "+1555", ReceivedAt: sentAt}, enrich.Info{}, "d", nowAt)
	require.NoError(t, err)
	p := decode(t, body)
	assert.Equal(t, EventCallReceived, p.Event)
	assert.Equal(t, "Incoming call from +1555", p.Message)
	assert.Equal(t, "Unknown", p.Data["contact"])
	assert.Equal(t, float64(0), p.Data["duration"])

	body, err = RenderEnhanced(rule, events.NewPushEvent("com.chat", "T", "C", sentAt), enrich.Info{}, "d", nowAt)
	require.NoError(t, err)
	p = decode(t, body)
	assert.Equal(t, EventPushReceived, p.Event)
	assert.Equal(t, "Push notification received from com.chat", p.Message)
	assert.Equal(t, "notification", p.Data["sim"])
	assert.Equal(t, "T: C", p.Data["text"])
}

func TestRenderEnhanced_DeviceInfoFiltered(t *testing.T) {
	rule := rules.Rule{EnhancedDataEnabled: true, IncludeDeviceInfo: false, IncludeSimInfo: true}
	info := enrich.Info{
		DeviceModel: "Pixel",
		SimInfo:     map[string]any{"sim_count": 1},
		NetworkInfo: map[string]any{"type": "wifi"},
		AppConfig:   map[string]any{"v": "1"},
	}

	body, err := RenderEnhanced(rule, events.SMSEvent{SentAt: sentAt}, info, "d", nowAt)
	require.NoError(t, err)

	deviceInfo, ok := decode(t, body).Data["device_info"].(map[string]any)
	require.True(t, ok, "device_info missing")
	assert.Len(t, deviceInfo, 1)
	assert.Contains(t, deviceInfo, "sim_info")
}

type stubProvider struct {
	info  enrich.Info
	err   error
	calls int
}

func (s *stubProvider) Collect(ctx context.Context) (enrich.Info, error) {
	s.calls++
	return s.info, s.err
}

func TestRender_PlainWhenEnhancedDisabled(t *testing.T) {
	p := &stubProvider{}
	r := NewRenderer(p, "d", zerolog.Nop(), WithClock(fixedClock))
	rule := rules.New("*", "https://example.com", "")
	rule.IncludeDeviceInfo = true

	got := r.Render(context.Background(), rule, events.SMSEvent{From: "1", SentAt: sentAt})
	assert.Equal(t, RenderPlain(rule, events.SMSEvent{From: "1", SentAt: sentAt}, nowAt), got)
	assert.Equal(t, 0, p.calls, "provider must not be consulted for plain rules")
}

func TestRender_EnhancedWithoutIncludeFlagsSkipsProvider(t *testing.T) {
	p := &stubProvider{}
	r := NewRenderer(p, "d", zerolog.Nop(), WithClock(fixedClock))
	rule := rules.New("*", "https://example.com", "")
	rule.EnhancedDataEnabled = true

	got := r.Render(context.Background(), rule, events.SMSEvent{SentAt: sentAt})
	assert.Equal(t, EventSMSReceived, decode(t, got).Event)
	assert.Equal(t, 0, p.calls)
}

func TestRender_FallsBackWhenEnrichmentFails(t *testing.T) {
	p := &stubProvider{err: errors.New("telephony unavailable")}
	r := NewRenderer(p, "d", zerolog.Nop(), WithClock(fixedClock))
	rule := rules.New("*", "https://example.com", "")
	rule.EnhancedDataEnabled = true
	rule.IncludeNetworkInfo = true
	ev := events.SMSEvent{From: "1", Text: "t", SentAt: sentAt}

	got := r.Render(context.Background(), rule, ev)
	assert.Equal(t, RenderPlain(rule, ev, nowAt), got)
}

func TestRender_ReceivedStampIsRenderTime(t *testing.T) {
	r := NewRenderer(nil, "d", zerolog.Nop())
	rule := rules.Rule{Template: `%receivedStamp%`}
	ev := events.SMSEvent{SentAt: time.Now().Add(-time.Minute)}

	before := time.Now().UnixMilli()
	got, err := strconv.ParseInt(r.Render(context.Background(), rule, ev), 10, 64)
	after := time.Now().UnixMilli()

	require.NoError(t, err)
	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
	assert.GreaterOrEqual(t, got, ev.SentAt.UnixMilli())
}
