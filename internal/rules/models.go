package rules

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// ActivityType identifies the kind of device activity a rule forwards.
type ActivityType string

// Supported activity types (lower-case values match the persisted record).
const (
	ActivitySMS  ActivityType = "sms"
	ActivityPush ActivityType = "push"
	ActivityCall ActivityType = "call"
)

// ParseActivityType normalizes s into an ActivityType.
// Upper-case forms ("SMS", "PUSH", "CALL") are accepted.
func ParseActivityType(s string) (ActivityType, bool) {
	switch ActivityType(strings.ToLower(strings.TrimSpace(s))) {
	case ActivitySMS:
		return ActivitySMS, true
	case ActivityPush:
		return ActivityPush, true
	case ActivityCall:
		return ActivityCall, true
	}
	return "", false
}

const (
	// Wildcard matches any sender.
	Wildcard = "*"

	// DefaultRetries is the default maximum number of delivery attempts.
	DefaultRetries = 10

	// DefaultAppName is used for the default User-agent header.
	DefaultAppName = "Android-activity-gateway App"

	// DefaultTemplate is the payload template for rules that do not define one.
	DefaultTemplate = `{"from":"%from%","text":"%text%","sentStamp":%sentStamp%,"receivedStamp":%receivedStamp%,"sim":"%sim%"}`
)

// DefaultHeaders returns the default header literal for the given app name.
func DefaultHeaders(appName string) string {
	if appName == "" {
		appName = DefaultAppName
	}
	b, _ := json.Marshal(map[string]string{"User-agent": appName})
	return string(b)
}

// Rule is a user-defined forwarding instruction: events matching Sender,
// ActivityType and SimSlot are rendered with Template and posted to URL.
type Rule struct {
	Key           string       `json:"key" yaml:"key"`
	Sender        string       `json:"sender" yaml:"sender"`
	ActivityType  ActivityType `json:"activityType" yaml:"activityType"`
	SimSlot       int          `json:"sim_slot" yaml:"sim_slot"`
	URL           string       `json:"url" yaml:"url"`
	Template      string       `json:"template" yaml:"template"`
	Headers       string       `json:"headers" yaml:"headers"`
	RetriesNumber int          `json:"retriesNumber" yaml:"retriesNumber"`
	IgnoreSSL     bool         `json:"ignoreSsl" yaml:"ignoreSsl"`
	ChunkedMode   bool         `json:"chunkedMode" yaml:"chunkedMode"`
	IsOn          bool         `json:"isOn" yaml:"isOn"`

	EnhancedDataEnabled bool `json:"enhancedDataEnabled" yaml:"enhancedDataEnabled"`
	IncludeDeviceInfo   bool `json:"includeDeviceInfo" yaml:"includeDeviceInfo"`
	IncludeSimInfo      bool `json:"includeSimInfo" yaml:"includeSimInfo"`
	IncludeNetworkInfo  bool `json:"includeNetworkInfo" yaml:"includeNetworkInfo"`
	IncludeAppConfig    bool `json:"includeAppConfig" yaml:"includeAppConfig"`
}

// New returns a rule for sender and url with every other field at its default.
func New(sender, url, appName string) Rule {
	return Rule{
		Sender:        sender,
		ActivityType:  ActivitySMS,
		URL:           url,
		Template:      DefaultTemplate,
		Headers:       DefaultHeaders(appName),
		RetriesNumber: DefaultRetries,
		ChunkedMode:   true,
		IsOn:          true,
	}
}

// GenerateKey returns a new rule key of the form "<epoch-millis>_<6 digits>".
func GenerateKey(now time.Time) string {
	return fmt.Sprintf("%d_%d", now.UnixMilli(), 100000+rand.IntN(899991))
}

// IsWildcard reports whether the rule matches any sender.
func (r Rule) IsWildcard() bool {
	return r.Sender == Wildcard
}

// WantsEnrichment reports whether any enrichment section is requested.
func (r Rule) WantsEnrichment() bool {
	return r.IncludeDeviceInfo || r.IncludeSimInfo || r.IncludeNetworkInfo || r.IncludeAppConfig
}
