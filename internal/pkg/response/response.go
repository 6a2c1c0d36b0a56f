package response

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/questline/core/internal/pkg/kind"
)

// Pagination metadata returned with paginated responses. Cursor is opaque;
// clients pass it back verbatim to fetch the next page.
type Pagination struct {
	Limit   int    `json:"limit"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// pagedResponse is the envelope for paginated list responses.
type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{
		Data:       data,
		Pagination: pagination,
	})
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abortJSON(c, http.StatusBadRequest, message, nil)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}
	abortJSON(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "not allowed"
	}
	abortJSON(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	abortJSON(c, http.StatusNotFound, "not found", nil)
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	abortJSON(c, http.StatusNotFound, message, nil)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	abortJSON(c, http.StatusConflict, message, nil)
}

// TooManyRequests sends a 429 with a Retry-After hint in seconds.
func TooManyRequests(c *gin.Context, message string, retryAfter string) {
	if retryAfter != "" {
		c.Header("Retry-After", retryAfter)
	}
	abortJSON(c, http.StatusTooManyRequests, message, nil)
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	abortJSON(c, http.StatusMethodNotAllowed, "method not allowed", nil)
}

// InternalError sends a 500 carrying only a correlation id. The cause never
// reaches the client; callers log it against the same id.
func InternalError(c *gin.Context) string {
	correlationID := uuid.NewString()
	c.Header("X-Correlation-Id", correlationID)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"ok":             0,
		"code":           http.StatusInternalServerError,
		"message":        "internal error",
		"correlation_id": correlationID,
	})
	return correlationID
}

// Error translates a classified error to its HTTP status. It is the single
// boundary between the error taxonomy and the wire; handlers never pick
// status codes themselves. Returns a correlation id for 5xx/internal errors
// so the caller can log the cause against it.
func Error(c *gin.Context, err error) string {
	var ke *kind.Error
	if !errors.As(err, &ke) {
		return InternalError(c)
	}

	status, ok := statusByKind[ke.Kind]
	if !ok {
		return InternalError(c)
	}
	if status == http.StatusInternalServerError {
		return InternalError(c)
	}

	var fields gin.H
	if len(ke.Fields) > 0 {
		fields = gin.H{"fields": ke.Fields}
	}
	if ke.Kind == kind.Throttled {
		c.Header("Retry-After", "60")
	}
	abortJSON(c, status, ke.Message, fields)
	return ""
}

var statusByKind = map[kind.Kind]int{
	kind.AuthMissing:      http.StatusUnauthorized,
	kind.AuthExpired:      http.StatusUnauthorized,
	kind.AuthSignature:    http.StatusUnauthorized,
	kind.AuthClaims:       http.StatusUnauthorized,
	kind.AuthRevoked:      http.StatusUnauthorized,
	kind.AuthLocked:       http.StatusUnauthorized,
	kind.PermissionDenied: http.StatusForbidden,
	kind.ValidationFailed: http.StatusBadRequest,
	kind.NotFound:         http.StatusNotFound,
	kind.ConflictVersion:  http.StatusConflict,
	kind.ConflictState:    http.StatusConflict,
	kind.GoneTerminal:     http.StatusGone,
	kind.Throttled:        http.StatusTooManyRequests,
	kind.DependencyDown:   http.StatusServiceUnavailable,
	kind.Internal:         http.StatusInternalServerError,
}

func abortJSON(c *gin.Context, status int, message string, extra gin.H) {
	body := gin.H{"ok": 0, "code": status, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
