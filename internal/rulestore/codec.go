package rulestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

// ErrCorruptRecord marks a stored value that cannot be turned into a Rule.
var ErrCorruptRecord = errors.New("corrupt rule record")

// record is the persisted JSON shape of a rule. Pointer fields distinguish
// "absent" from the zero value so older records pick up today's defaults.
type record struct {
	Key                   string  `json:"key,omitempty"`
	Sender                *string `json:"sender,omitempty"`
	URL                   *string `json:"url"`
	SimSlot               int     `json:"sim_slot"`
	Template              *string `json:"template"`
	Headers               *string `json:"headers"`
	RetriesNumber         *int    `json:"retriesNumber"`
	IgnoreSSL             bool    `json:"ignoreSsl"`
	ChunkedMode           *bool   `json:"chunkedMode"`
	IsSmsEnabled          *bool   `json:"isSmsEnabled"`
	IsNotificationEnabled *bool   `json:"isNotificationEnabled"`
	ActivityType          string  `json:"activityType,omitempty"`
	IsOn                  *bool   `json:"isOn"`
	EnhancedDataEnabled   bool    `json:"enhancedDataEnabled"`
	IncludeDeviceInfo     bool    `json:"includeDeviceInfo"`
	IncludeSimInfo        bool    `json:"includeSimInfo"`
	IncludeNetworkInfo    bool    `json:"includeNetworkInfo"`
	IncludeAppConfig      bool    `json:"includeAppConfig"`
}

// Codec converts between stored values and Rules.
type Codec struct {
	// AppName feeds the default User-agent header of migrated legacy values.
	AppName string
}

// Decode normalizes one stored value into the canonical Rule shape.
//
// A value beginning with '{' is a JSON record; anything else is the legacy
// format, where mapKey is the sender and the value is the URL.
func (c Codec) Decode(mapKey, value string) (rules.Rule, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return rules.Rule{}, fmt.Errorf("%w: empty value under %q", ErrCorruptRecord, mapKey)
	}
	if trimmed[0] != '{' {
		return c.decodeLegacy(mapKey, trimmed), nil
	}

	var rec record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %q: %v", ErrCorruptRecord, mapKey, err)
	}

	if rec.URL == nil || strings.TrimSpace(*rec.URL) == "" {
		return rules.Rule{}, fmt.Errorf("%w: %q has no url", ErrCorruptRecord, mapKey)
	}
	if rec.Template == nil || *rec.Template == "" {
		return rules.Rule{}, fmt.Errorf("%w: %q has no template", ErrCorruptRecord, mapKey)
	}
	if rec.Headers == nil || *rec.Headers == "" {
		return rules.Rule{}, fmt.Errorf("%w: %q has no headers", ErrCorruptRecord, mapKey)
	}

	r := rules.Rule{
		Key:                 rec.Key,
		Sender:              mapKey,
		SimSlot:             rec.SimSlot,
		URL:                 *rec.URL,
		Template:            *rec.Template,
		Headers:             *rec.Headers,
		RetriesNumber:       rules.DefaultRetries,
		IgnoreSSL:           rec.IgnoreSSL,
		ChunkedMode:         true,
		IsOn:                true,
		EnhancedDataEnabled: rec.EnhancedDataEnabled,
		IncludeDeviceInfo:   rec.IncludeDeviceInfo,
		IncludeSimInfo:      rec.IncludeSimInfo,
		IncludeNetworkInfo:  rec.IncludeNetworkInfo,
		IncludeAppConfig:    rec.IncludeAppConfig,
	}
	if r.Key == "" {
		r.Key = mapKey
	}
	if rec.Sender != nil {
		r.Sender = *rec.Sender
	}
	if rec.RetriesNumber != nil {
		r.RetriesNumber = *rec.RetriesNumber
	}
	if rec.ChunkedMode != nil {
		r.ChunkedMode = *rec.ChunkedMode
	}
	if rec.IsOn != nil {
		r.IsOn = *rec.IsOn
	}
	r.ActivityType = inferActivityType(rec)

	return r, nil
}

// inferActivityType reads activityType, falling back to the older per-kind
// flags. Unknown values map to SMS.
func inferActivityType(rec record) rules.ActivityType {
	if rec.ActivityType != "" {
		if t, ok := rules.ParseActivityType(rec.ActivityType); ok {
			return t
		}
		return rules.ActivitySMS
	}
	smsOn := rec.IsSmsEnabled == nil || *rec.IsSmsEnabled
	pushOn := rec.IsNotificationEnabled != nil && *rec.IsNotificationEnabled
	if pushOn && !smsOn {
		return rules.ActivityPush
	}
	return rules.ActivitySMS
}

func (c Codec) decodeLegacy(mapKey, url string) rules.Rule {
	r := rules.New(mapKey, url, c.AppName)
	r.Key = mapKey
	return r
}

// Encode serializes every field of r, including ones equal to their defaults.
func (c Codec) Encode(r rules.Rule) (string, error) {
	isSMS := r.ActivityType == rules.ActivitySMS
	isPush := r.ActivityType == rules.ActivityPush
	rec := record{
		Key:                   r.Key,
		Sender:                &r.Sender,
		URL:                   &r.URL,
		SimSlot:               r.SimSlot,
		Template:              &r.Template,
		Headers:               &r.Headers,
		RetriesNumber:         &r.RetriesNumber,
		IgnoreSSL:             r.IgnoreSSL,
		ChunkedMode:           &r.ChunkedMode,
		IsSmsEnabled:          &isSMS,
		IsNotificationEnabled: &isPush,
		ActivityType:          string(r.ActivityType),
		IsOn:                  &r.IsOn,
		EnhancedDataEnabled:   r.EnhancedDataEnabled,
		IncludeDeviceInfo:     r.IncludeDeviceInfo,
		IncludeSimInfo:        r.IncludeSimInfo,
		IncludeNetworkInfo:    r.IncludeNetworkInfo,
		IncludeAppConfig:      r.IncludeAppConfig,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode rule %q: %w", r.Key, err)
	}
	return string(b), nil
}
