// Package matcher selects the rules that apply to an event.
package matcher

import (
	"strings"

	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

// Match returns the rules that apply to ev, in input order.
// Every rule is evaluated independently; several may match the same event.
func Match(ev events.Event, all []rules.Rule) []rules.Rule {
	var matched []rules.Rule
	for _, r := range all {
		if Matches(ev, r) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Matches reports whether a single rule applies to ev.
func Matches(ev events.Event, r rules.Rule) bool {
	if !r.IsOn || r.ActivityType != ev.Kind() {
		return false
	}
	if !senderMatches(ev, r.Sender) {
		return false
	}
	// Push notifications carry no SIM slot.
	if ev.Kind() != rules.ActivityPush && r.SimSlot > 0 && r.SimSlot != ev.Slot() {
		return false
	}
	return true
}

func senderMatches(ev events.Event, pattern string) bool {
	if strings.TrimSpace(pattern) == rules.Wildcard {
		return true
	}

	if ev.Kind() == rules.ActivityPush {
		pkg := ev.Sender()
		pattern = strings.TrimSpace(pattern)
		return pkg == pattern || (pattern != "" && strings.Contains(pkg, pattern))
	}

	for _, entry := range strings.Split(pattern, ",") {
		if IsPhoneNumberMatch(ev.Sender(), strings.TrimSpace(entry)) {
			return true
		}
	}
	return false
}

// IsPhoneNumberMatch compares two senders. Identical non-empty strings always
// match, so alphanumeric senders such as "BANK" work. Otherwise only digits
// count: either digit string may be a suffix of the other, which tolerates a
// country code on one side.
func IsPhoneNumberMatch(incoming, configured string) bool {
	incoming, configured = strings.TrimSpace(incoming), strings.TrimSpace(configured)
	if incoming != "" && incoming == configured {
		return true
	}
	a, b := digits(incoming), digits(configured)
	if a == "" || b == "" {
		return false
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
