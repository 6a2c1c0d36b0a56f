package kind

import (
	"errors"
	"fmt"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	assert.Equal(t, NotFound, Of(New(NotFound, "goal missing")))
	assert.Equal(t, Internal, Of(errors.New("plain")))

	wrapped := fmt.Errorf("handler: %w", New(ConflictVersion, "stale write"))
	assert.Equal(t, ConflictVersion, Of(wrapped))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(DependencyDown, "store", nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(DependencyDown, "store unreachable", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, DependencyDown, Of(err))
	assert.Contains(t, err.Error(), "store unreachable")
}

func TestIsAuth(t *testing.T) {
	for _, k := range []Kind{AuthMissing, AuthExpired, AuthSignature, AuthClaims, AuthRevoked, AuthLocked} {
		assert.True(t, IsAuth(New(k, "")), string(k))
	}
	assert.False(t, IsAuth(New(PermissionDenied, "")))
	assert.False(t, IsAuth(nil))
}

func TestWithFields(t *testing.T) {
	err := New(ValidationFailed, "input rejected").WithFields(map[string]string{"title": "too long"})
	assert.Equal(t, "too long", err.Fields["title"])
}
