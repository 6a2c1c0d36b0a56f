package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/pkg/response"
	"github.com/questline/core/internal/store"
)

// FromContext extracts limit/cursor pagination from the request. Limits are
// clamped to the store's bounds; the cursor passes through opaque.
func FromContext(c *gin.Context) store.Page {
	limit := parseIntOr(c.DefaultQuery("limit", ""), store.DefaultLimit)
	if limit < 1 {
		limit = store.DefaultLimit
	}
	if limit > store.MaxLimit {
		limit = store.MaxLimit
	}
	return store.Page{
		Limit:  limit,
		Cursor: c.Query("cursor"),
	}
}

// Meta converts a query result into the response envelope's pagination.
func Meta(page store.Page, res store.Result) response.Pagination {
	limit := page.Limit
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return response.Pagination{
		Limit:   limit,
		Cursor:  res.Cursor,
		HasMore: res.HasMore,
	}
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
