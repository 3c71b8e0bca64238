package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Sentinel errors returned by Validate.
var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidTemplate     = errors.New("invalid template")
	ErrInvalidHeaders      = errors.New("invalid headers")
	ErrInvalidRetries      = errors.New("invalid retries number")
	ErrInvalidSender       = errors.New("invalid sender")
	ErrInvalidActivityType = errors.New("invalid activity type")
	ErrInvalidSimSlot      = errors.New("invalid sim slot")
)

// placeholderPattern matches a %name% token.
var placeholderPattern = regexp.MustCompile(`%[A-Za-z_]+%`)

// Validate performs save-time validation of a Rule.
// It is a pure function: it never mutates r and has no side effects.
// Stored rules are not re-validated on read.
func Validate(r Rule) error {
	if strings.TrimSpace(r.Sender) == "" {
		return fmt.Errorf("%w: sender must not be empty", ErrInvalidSender)
	}

	if _, ok := ParseActivityType(string(r.ActivityType)); !ok {
		return fmt.Errorf("%w: %q is not one of sms, push, call", ErrInvalidActivityType, r.ActivityType)
	}

	if r.SimSlot < 0 {
		return fmt.Errorf("%w: got %d, want 0 (any) or a 1-based slot", ErrInvalidSimSlot, r.SimSlot)
	}

	if r.RetriesNumber < 0 {
		return fmt.Errorf("%w: got %d, want >= 0", ErrInvalidRetries, r.RetriesNumber)
	}

	if err := ValidateURL(r.URL); err != nil {
		return err
	}

	if !IsJSONObject(FillPlaceholders(r.Template)) {
		return fmt.Errorf("%w: template must be a JSON object once placeholders are filled", ErrInvalidTemplate)
	}

	if _, err := ParseHeaders(r.Headers); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHeaders, err)
	}

	return nil
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: url must not be empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not http or https", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url must be absolute", ErrInvalidURL)
	}
	return nil
}

// FillPlaceholders replaces every %name% token with 0 so that templates with
// unquoted numeric tokens (e.g. "sentStamp":%sentStamp%) can be checked as JSON.
func FillPlaceholders(template string) string {
	return placeholderPattern.ReplaceAllString(template, "0")
}

// IsJSONObject reports whether s is a JSON object literal.
func IsJSONObject(s string) bool {
	var obj map[string]any
	return json.Unmarshal([]byte(s), &obj) == nil && obj != nil
}

// ParseHeaders decodes a rule's header literal into name/value pairs.
// Non-string values are formatted with fmt.
func ParseHeaders(literal string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(literal), &raw); err != nil {
		return nil, fmt.Errorf("headers must be a JSON object: %w", err)
	}
	if raw == nil {
		return nil, errors.New("headers must be a JSON object")
	}
	headers := make(map[string]string, len(raw))
	for name, v := range raw {
		if s, ok := v.(string); ok {
			headers[name] = s
			continue
		}
		headers[name] = fmt.Sprint(v)
	}
	return headers, nil
}
