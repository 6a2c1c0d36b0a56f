package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	httpCachePrefix    = "ql:httpcache:"
	httpCacheMaxBody   = 1 << 20 // 1 MiB
	httpCacheHitHeader = "x-ql-cache"
)

// HTTPCacheOptions configures the principal-keyed response cache for one
// route group.
type HTTPCacheOptions struct {
	TTL     time.Duration
	Disable bool
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

type cacheBodyWriter struct {
	gin.ResponseWriter
	body     []byte
	overflow bool
}

func (w *cacheBodyWriter) Write(data []byte) (int, error) {
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheBodyWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *cacheBodyWriter) capture(data []byte) {
	if w.overflow || len(data) == 0 {
		return
	}
	if len(w.body)+len(data) > httpCacheMaxBody {
		w.overflow = true
		return
	}
	w.body = append(w.body, data...)
}

// cacheStore is the narrow slice of redis the response cache needs.
type cacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisCache struct {
	rdb *redis.Client
}

func (r redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return r.rdb.Get(ctx, key).Bytes()
}

func (r redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// HTTPCache caches successful GET responses in redis, encrypted at rest
// and keyed by (principal, method, URI) so one user's response can never
// serve another. Runs after Auth; unauthenticated requests pass through
// uncached.
func HTTPCache(rdb *redis.Client, secret []byte, opts HTTPCacheOptions) gin.HandlerFunc {
	if rdb == nil {
		opts.Disable = true
	}
	return httpCache(redisCache{rdb: rdb}, secret, opts)
}

func httpCache(cache cacheStore, secret []byte, opts HTTPCacheOptions) gin.HandlerFunc {
	encKey := sha256.Sum256(secret)
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return func(c *gin.Context) {
		if opts.Disable || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		p := CurrentPrincipal(c)
		if p == nil {
			c.Next()
			return
		}

		cacheKey := responseCacheKey(p.UserID, c.Request.Method, c.Request.URL.RequestURI())
		if payload, ok := readCached(c, cache, cacheKey, encKey[:]); ok {
			c.Header(httpCacheHitHeader, "hit")
			c.Data(payload.Status, payload.ContentType, payload.Body)
			c.Abort()
			return
		}

		buffer := &cacheBodyWriter{ResponseWriter: c.Writer}
		c.Writer = buffer
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusOK || buffer.overflow || len(buffer.body) == 0 {
			return
		}
		raw, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        buffer.body,
		})
		if err != nil {
			return
		}
		sealed, err := seal(encKey[:], raw)
		if err != nil {
			return
		}
		_ = cache.Set(c.Request.Context(), cacheKey, sealed, ttl)
	}
}

// CacheFunc builds a response-cache middleware for one TTL. Handlers hold a
// CacheFunc so route registration can name per-endpoint TTLs without knowing
// about redis.
type CacheFunc func(ttl time.Duration) gin.HandlerFunc

// CacheWith binds HTTPCache to a redis client and encryption secret.
func CacheWith(rdb *redis.Client, secret []byte) CacheFunc {
	return func(ttl time.Duration) gin.HandlerFunc {
		return HTTPCache(rdb, secret, HTTPCacheOptions{TTL: ttl})
	}
}

// PassthroughCache satisfies CacheFunc without caching anything.
func PassthroughCache(time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

func responseCacheKey(userID, method, uri string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + method + "\x00" + uri))
	return httpCachePrefix + hex.EncodeToString(sum[:])
}

func readCached(c *gin.Context, cache cacheStore, cacheKey string, key []byte) (cachedResponse, bool) {
	sealed, err := cache.Get(c.Request.Context(), cacheKey)
	if err != nil || len(sealed) == 0 {
		return cachedResponse{}, false
	}
	raw, err := open(key, sealed)
	if err != nil {
		return cachedResponse{}, false
	}
	var payload cachedResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return cachedResponse{}, false
	}
	if payload.Status <= 0 {
		payload.Status = http.StatusOK
	}
	if payload.ContentType == "" {
		payload.ContentType = "application/json; charset=utf-8"
	}
	return payload, true
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
