package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/questline/core/internal/pkg/kind"
	assert "github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		ok   bool
		name string
	}{
		{"  hello  ", "hello", true, "trims"},
		{"line\nbreak", "line\nbreak", true, "keeps newline"},
		{"tab\tstop", "tab\tstop", true, "keeps tab"},
		{"bell\x07ring", "bellring", true, "drops control chars"},
		{"<script>", "", false, "rejects markup"},
		{"a > b", "", false, "rejects closing bracket"},
	}
	for _, tc := range cases {
		out, ok := Sanitize(tc.in)
		assert.Equal(t, tc.ok, ok, tc.name)
		if ok {
			assert.Equal(t, tc.out, out, tc.name)
		}
	}
}

func TestTextRequired(t *testing.T) {
	var e Errors
	assert.Equal(t, "fine", Text(&e, "title", "fine", MaxTitleLen))
	assert.NoError(t, e.Err())

	Text(&e, "title", "   ", MaxTitleLen)
	err := e.Err()
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestTextTooLong(t *testing.T) {
	var e Errors
	Text(&e, "title", strings.Repeat("x", MaxTitleLen+1), MaxTitleLen)
	assert.Error(t, e.Err())
}

func TestOptionalTextAllowsEmpty(t *testing.T) {
	var e Errors
	assert.Equal(t, "", OptionalText(&e, "bio", "", MaxDescriptionLen))
	assert.NoError(t, e.Err())
}

func TestErrorsFirstMessagePerFieldWins(t *testing.T) {
	var e Errors
	e.Add("title", "is required")
	e.Add("title", "too long")
	err := e.Err()
	assert.True(t, kind.Is(err, kind.ValidationFailed))
	assert.Contains(t, err.Error(), "input rejected")
}

func TestUUIDField(t *testing.T) {
	var e Errors
	assert.Equal(t, "a2cdd1f1-58cb-4a2f-9341-1339a3ec6c86",
		UUID(&e, "id", " a2cdd1f1-58cb-4a2f-9341-1339a3ec6c86 "))
	assert.NoError(t, e.Err())

	UUID(&e, "id", "not-a-uuid")
	assert.Error(t, e.Err())
}

func TestEnumField(t *testing.T) {
	var e Errors
	assert.Equal(t, "public", Enum(&e, "type", "public", "public", "private"))
	assert.NoError(t, e.Err())
	Enum(&e, "type", "secret", "public", "private")
	assert.Error(t, e.Err())
}

func TestIntRangeField(t *testing.T) {
	var e Errors
	assert.Equal(t, 500, IntRange(&e, "xp", 500, MinRewardXP, MaxRewardXP))
	assert.NoError(t, e.Err())
	IntRange(&e, "xp", MaxRewardXP+1, MinRewardXP, MaxRewardXP)
	assert.Error(t, e.Err())
}

func TestDeadlineWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var e Errors
	ok := now.Add(48 * time.Hour)
	assert.Equal(t, ok, Deadline(&e, "deadline", ok, now))
	assert.NoError(t, e.Err())

	Deadline(&e, "deadline", now.Add(30*time.Minute), now)
	assert.Error(t, e.Err())

	var e2 Errors
	Deadline(&e2, "deadline", now.Add(MaxDeadlineLead+time.Hour), now)
	assert.Error(t, e2.Err())
}

func TestTagsBounds(t *testing.T) {
	var e Errors
	assert.Equal(t, []string{"health", "q2"}, Tags(&e, "tags", []string{" health ", "q2"}))
	assert.NoError(t, e.Err())

	Tags(&e, "tags", []string{"spaced out"})
	assert.Error(t, e.Err())

	var e2 Errors
	many := make([]string, MaxTags+1)
	for i := range many {
		many[i] = "tag"
	}
	Tags(&e2, "tags", many)
	assert.Error(t, e2.Err())
}

func TestEmailShape(t *testing.T) {
	var e Errors
	assert.Equal(t, "user@example.com", Email(&e, "email", " User@Example.COM "))
	assert.NoError(t, e.Err())

	for _, bad := range []string{"plain", "@example.com", "user@", "user@nodot"} {
		var e2 Errors
		Email(&e2, "email", bad)
		assert.Error(t, e2.Err(), bad)
	}
}

func TestPasswordBounds(t *testing.T) {
	var e Errors
	assert.Equal(t, "P@ss12345", Password(&e, "password", "P@ss12345"))
	assert.NoError(t, e.Err())

	Password(&e, "password", "short")
	assert.Error(t, e.Err())

	var e2 Errors
	Password(&e2, "password", strings.Repeat("x", MaxPasswordLen+1))
	assert.Error(t, e2.Err())
}
