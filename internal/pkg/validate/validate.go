// Package validate holds the input-sanitization primitives applied at every
// handler boundary. Failures accumulate per field and surface as one
// validation.failed error.
package validate

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/questline/core/internal/pkg/kind"
)

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
	MaxCommentLen     = 1000
	MaxNicknameLen    = 50
	MaxTags           = 10
	MaxTagLen         = 20
	MinPasswordLen    = 8
	MaxPasswordLen    = 128

	MinRewardXP = 0
	MaxRewardXP = 1000

	MinDeadlineLead = time.Hour
	MaxDeadlineLead = 365 * 24 * time.Hour
)

// Errors collects per-field failures.
type Errors struct {
	fields map[string]string
}

// Add records a failure for field; the first message per field wins.
func (e *Errors) Add(field, message string) {
	if e.fields == nil {
		e.fields = make(map[string]string)
	}
	if _, ok := e.fields[field]; !ok {
		e.fields[field] = message
	}
}

// Err returns the accumulated validation error, or nil when clean.
func (e *Errors) Err() error {
	if len(e.fields) == 0 {
		return nil
	}
	return kind.New(kind.ValidationFailed, "input rejected").WithFields(e.fields)
}

// Sanitize strips control characters and trims whitespace. Angle brackets
// are rejected rather than escaped: payloads are data, never markup.
func Sanitize(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		if r == '<' || r == '>' {
			return "", false
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String()), true
}

// Text sanitizes and length-bounds a required string field.
func Text(e *Errors, field, value string, maxLen int) string {
	clean, ok := Sanitize(value)
	if !ok {
		e.Add(field, "must not contain markup")
		return ""
	}
	if clean == "" {
		e.Add(field, "is required")
		return ""
	}
	if len(clean) > maxLen {
		e.Add(field, "too long")
		return ""
	}
	return clean
}

// OptionalText sanitizes and length-bounds a string field that may be empty.
func OptionalText(e *Errors, field, value string, maxLen int) string {
	clean, ok := Sanitize(value)
	if !ok {
		e.Add(field, "must not contain markup")
		return ""
	}
	if len(clean) > maxLen {
		e.Add(field, "too long")
		return ""
	}
	return clean
}

// UUID checks that value parses as a UUID.
func UUID(e *Errors, field, value string) string {
	if _, err := uuid.Parse(strings.TrimSpace(value)); err != nil {
		e.Add(field, "must be a valid id")
		return ""
	}
	return strings.TrimSpace(value)
}

// Enum checks that value is one of allowed.
func Enum(e *Errors, field, value string, allowed ...string) string {
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	e.Add(field, "not in allowed set")
	return ""
}

// IntRange checks min <= value <= max.
func IntRange(e *Errors, field string, value, min, max int) int {
	if value < min || value > max {
		e.Add(field, "out of range")
		return 0
	}
	return value
}

// Deadline checks the deadline window [now+1h, now+1y].
func Deadline(e *Errors, field string, deadline, now time.Time) time.Time {
	if deadline.Before(now.Add(MinDeadlineLead)) {
		e.Add(field, "must be at least one hour out")
		return time.Time{}
	}
	if deadline.After(now.Add(MaxDeadlineLead)) {
		e.Add(field, "must be within one year")
		return time.Time{}
	}
	return deadline
}

// Tags bounds the tag array: at most 10 entries of at most 20 alphanumeric
// characters each.
func Tags(e *Errors, field string, tags []string) []string {
	if len(tags) > MaxTags {
		e.Add(field, "too many tags")
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || len(tag) > MaxTagLen || !alphanumeric(tag) {
			e.Add(field, "tags must be short and alphanumeric")
			return nil
		}
		out = append(out, tag)
	}
	return out
}

// Email performs a light shape check; the verification mail is the real
// proof of ownership.
func Email(e *Errors, field, value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	at := strings.Index(v, "@")
	if at < 1 || at == len(v)-1 || !strings.Contains(v[at:], ".") || len(v) > 254 {
		e.Add(field, "must be a valid email address")
		return ""
	}
	return v
}

// Password bounds length only; composition rules are a product decision the
// KDF does not care about.
func Password(e *Errors, field, value string) string {
	if len(value) < MinPasswordLen {
		e.Add(field, "too short")
		return ""
	}
	if len(value) > MaxPasswordLen {
		e.Add(field, "too long")
		return ""
	}
	return value
}

func alphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
