// Package validation provides edit-time validation of rule input, reporting
// every invalid field at once.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/TimurManjosov/activitygate/internal/rules"
)

const (
	// MaxKeyLength is the maximum length for rule keys
	MaxKeyLength = 64
	// MaxSenderLength is the maximum length of a sender pattern
	MaxSenderLength = 1024
	// MaxTemplateSize is the maximum size of a template in bytes
	MaxTemplateSize = 64 * 1024 // 64KB
	// MaxHeadersSize is the maximum size of the headers literal in bytes
	MaxHeadersSize = 8 * 1024
	// MinPhoneDigits is the minimum number of digits in a phone list entry
	MinPhoneDigits = 7
	// MaxSimSlot is the highest SIM slot accepted
	MaxSimSlot = 8
)

var (
	// keyPattern matches alphanumeric characters, underscores, and hyphens
	keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// phonePattern matches one entry of a sender phone list
	phonePattern = regexp.MustCompile(`^[+]?[0-9\s\-\(\)]+$`)
)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// ValidateRule validates every field of a rule submitted for saving.
// An empty key is accepted; the store generates one.
func ValidateRule(r rules.Rule) *ValidationResult {
	result := NewValidationResult()

	if r.Key != "" {
		result.Merge(ValidateKey(r.Key))
	}

	kind, ok := rules.ParseActivityType(string(r.ActivityType))
	if !ok {
		result.AddError("activityType", "Activity type must be one of: sms, push, call")
	}
	result.Merge(ValidateSender(r.Sender, kind))

	if r.SimSlot < 0 || r.SimSlot > MaxSimSlot {
		result.AddError("sim_slot", "SIM slot must be 0 (any) or between 1 and 8")
	}
	if r.RetriesNumber < 0 {
		result.AddError("retriesNumber", "Retries must be 0 or more")
	}

	if err := rules.ValidateURL(r.URL); err != nil {
		result.AddError("url", "URL must be an absolute http or https URL")
	}

	result.Merge(ValidateTemplate(r.Template))
	result.Merge(ValidateHeaders(r.Headers))

	return result
}

// ValidateKey validates a rule key
func ValidateKey(key string) *ValidationResult {
	result := NewValidationResult()

	if utf8.RuneCountInString(key) > MaxKeyLength {
		result.AddError("key", "Key must be at most 64 characters")
		return result
	}
	if !keyPattern.MatchString(key) {
		result.AddError("key", "Key can only contain letters, numbers, underscores, and hyphens")
	}
	return result
}

// ValidateSender validates a sender pattern for the given activity type.
// Phone lists (SMS and call) need every entry to look like a phone number.
func ValidateSender(sender string, kind rules.ActivityType) *ValidationResult {
	result := NewValidationResult()
	sender = strings.TrimSpace(sender)

	switch {
	case sender == "":
		result.AddError("sender", "Sender is required (use * to match everything)")
		return result
	case len(sender) > MaxSenderLength:
		result.AddError("sender", "Sender must be at most 1024 characters")
		return result
	case sender == rules.Wildcard || kind == rules.ActivityPush:
		return result
	}

	for _, entry := range strings.Split(sender, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !IsValidPhoneNumber(entry) {
			result.AddError("sender", "Invalid phone number: "+entry)
			return result
		}
	}
	return result
}

// IsValidPhoneNumber reports whether s is a plausible phone number:
// digits with optional leading +, spaces, dashes and parentheses, and at
// least MinPhoneDigits digits.
func IsValidPhoneNumber(s string) bool {
	if !phonePattern.MatchString(s) {
		return false
	}
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n >= MinPhoneDigits
}

// ValidateTemplate checks that a template is a JSON object once its
// placeholders are filled.
func ValidateTemplate(template string) *ValidationResult {
	result := NewValidationResult()

	if len(template) > MaxTemplateSize {
		result.AddError("template", "Template exceeds maximum size of 64KB")
		return result
	}
	if !rules.IsJSONObject(rules.FillPlaceholders(template)) {
		result.AddError("template", "Template must be a JSON object")
	}
	return result
}

// ValidateHeaders checks the headers literal.
func ValidateHeaders(headers string) *ValidationResult {
	result := NewValidationResult()

	if len(headers) > MaxHeadersSize {
		result.AddError("headers", "Headers exceed maximum size of 8KB")
		return result
	}
	if _, err := rules.ParseHeaders(headers); err != nil {
		result.AddError("headers", "Headers must be a JSON object")
	}
	return result
}
