package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/pkg/token"
	assert "github.com/stretchr/testify/require"
)

type memoryCache struct {
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, ok := m.entries[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return b, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.entries[key] = value
	return nil
}

// newCachedRouter mounts a GET route behind the response cache. The handler
// echoes the caller's identity and counts invocations; the x-test-user
// header stands in for the auth middleware.
func newCachedRouter(cache cacheStore, hits *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	principal := func(c *gin.Context) {
		if user := c.GetHeader("x-test-user"); user != "" {
			c.Set(ContextKeyPrincipal, &token.Principal{UserID: user})
		}
	}
	r.GET("/profile", principal, httpCache(cache, []byte("cache-secret"), HTTPCacheOptions{TTL: time.Minute}),
		func(c *gin.Context) {
			*hits++
			c.JSON(200, gin.H{"user": CurrentUserID(c)})
		})
	return r
}

func get(r *gin.Engine, user string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/profile", nil)
	if user != "" {
		req.Header.Set("x-test-user", user)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHTTPCachePrincipalIsolation(t *testing.T) {
	cache := newMemoryCache()
	hits := 0
	r := newCachedRouter(cache, &hits)

	// First request as A runs the handler and fills the cache.
	first := get(r, "user-a")
	assert.Equal(t, 200, first.Code)
	assert.Equal(t, 1, hits)
	assert.Contains(t, first.Body.String(), "user-a")

	// Second request as A is served from the cache.
	second := get(r, "user-a")
	assert.Equal(t, 1, hits)
	assert.Equal(t, "hit", second.Header().Get(httpCacheHitHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())

	// The identical URL as B misses: A's response never serves B.
	third := get(r, "user-b")
	assert.Equal(t, 2, hits)
	assert.Empty(t, third.Header().Get(httpCacheHitHeader))
	assert.Contains(t, third.Body.String(), "user-b")
	assert.NotContains(t, third.Body.String(), "user-a")
}

func TestHTTPCacheSkipsUnauthenticated(t *testing.T) {
	cache := newMemoryCache()
	hits := 0
	r := newCachedRouter(cache, &hits)

	get(r, "")
	get(r, "")
	assert.Equal(t, 2, hits)
	assert.Empty(t, cache.entries)
}

func TestHTTPCacheSealsBodies(t *testing.T) {
	cache := newMemoryCache()
	hits := 0
	r := newCachedRouter(cache, &hits)

	get(r, "user-a")
	assert.Len(t, cache.entries, 1)
	for _, sealed := range cache.entries {
		// Encrypted at rest: the plaintext identity never lands in redis.
		assert.NotContains(t, string(sealed), "user-a")
	}
}

func TestResponseCacheKeyVariesByUserAndURI(t *testing.T) {
	a := responseCacheKey("user-a", "GET", "/profile")
	b := responseCacheKey("user-b", "GET", "/profile")
	other := responseCacheKey("user-a", "GET", "/profile?x=1")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Equal(t, a, responseCacheKey("user-a", "GET", "/profile"))
}
