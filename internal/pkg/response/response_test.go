package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/pkg/kind"
	assert "github.com/stretchr/testify/require"
)

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)
	return w
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		kind kind.Kind
		want int
	}{
		{kind.AuthMissing, http.StatusUnauthorized},
		{kind.AuthExpired, http.StatusUnauthorized},
		{kind.AuthRevoked, http.StatusUnauthorized},
		{kind.PermissionDenied, http.StatusForbidden},
		{kind.ValidationFailed, http.StatusBadRequest},
		{kind.NotFound, http.StatusNotFound},
		{kind.ConflictVersion, http.StatusConflict},
		{kind.ConflictState, http.StatusConflict},
		{kind.GoneTerminal, http.StatusGone},
		{kind.Throttled, http.StatusTooManyRequests},
		{kind.DependencyDown, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		w := record(func(c *gin.Context) { Error(c, kind.New(tc.kind, "boom")) })
		assert.Equal(t, tc.want, w.Code, string(tc.kind))

		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.EqualValues(t, 0, body["ok"])
		assert.EqualValues(t, tc.want, body["code"])
	}
}

func TestErrorInternalHidesCause(t *testing.T) {
	var correlationID string
	w := record(func(c *gin.Context) {
		correlationID = Error(c, kind.New(kind.Internal, "secret database detail"))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, correlationID)
	assert.NotContains(t, w.Body.String(), "secret database detail")
	assert.Contains(t, w.Body.String(), correlationID)
	assert.Equal(t, correlationID, w.Header().Get("X-Correlation-Id"))
}

func TestErrorUnclassifiedIsInternal(t *testing.T) {
	w := record(func(c *gin.Context) {
		Error(c, assertAnError())
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func assertAnError() error { return json.Unmarshal([]byte("{"), &struct{}{}) }

func TestValidationFieldsSurface(t *testing.T) {
	w := record(func(c *gin.Context) {
		Error(c, kind.New(kind.ValidationFailed, "input rejected").
			WithFields(map[string]string{"deadline": "must be at least one hour out"}))
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "must be at least one hour out", body.Fields["deadline"])
}

func TestOKWrapsSlices(t *testing.T) {
	w := record(func(c *gin.Context) { OK(c, []string{"a", "b"}) })
	assert.JSONEq(t, `{"data":["a","b"]}`, w.Body.String())
}

func TestThrottledSetsRetryAfter(t *testing.T) {
	w := record(func(c *gin.Context) { Error(c, kind.New(kind.Throttled, "slow down")) })
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}
