package middleware

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/response"
	"github.com/questline/core/internal/pkg/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ContextKeyPrincipal = "principal"

	denyListPrefix   = "ql:deny:"
	decisionCacheTTL = 300 * time.Second
)

// decision is one cacheable authorizer outcome, keyed by the raw token.
type decision struct {
	principal *token.Principal
	denied    kind.Kind
}

// Authorizer validates bearer tokens and produces allow/deny decisions.
// Decisions cache for up to 300 seconds; the revocation list is consulted
// on every call so logout takes effect ahead of cache expiry.
type Authorizer struct {
	issuer *token.Issuer
	rdb    *redis.Client
	cache  *gocache.Cache
	logger *zap.Logger
}

func NewAuthorizer(issuer *token.Issuer, rdb *redis.Client, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{
		issuer: issuer,
		rdb:    rdb,
		cache:  gocache.New(decisionCacheTTL, time.Minute),
		logger: logger.Named("Authorizer"),
	}
}

// Authorize validates raw and returns the principal, or an auth.* error.
func (a *Authorizer) Authorize(ctx context.Context, raw string) (*token.Principal, error) {
	raw = NormalizeToken(raw)
	if raw == "" {
		return nil, kind.New(kind.AuthMissing, "authorization required")
	}

	if cached, ok := a.cache.Get(raw); ok {
		d := cached.(decision)
		if d.denied != "" {
			return nil, kind.New(d.denied, "token rejected")
		}
		if err := a.checkRevoked(ctx, d.principal.JTI); err != nil {
			a.cache.Delete(raw)
			return nil, err
		}
		return d.principal, nil
	}

	principal, err := a.issuer.VerifyAccess(raw)
	if err != nil {
		// Expiry denials self-resolve, everything else is stable for
		// the token's lifetime; both are safe to cache briefly.
		a.cache.Set(raw, decision{denied: kind.Of(err)}, decisionCacheTTL)
		return nil, err
	}
	if err := a.checkRevoked(ctx, principal.JTI); err != nil {
		return nil, err
	}

	ttl := decisionCacheTTL
	if until := time.Until(principal.Exp); until > 0 && until < ttl {
		ttl = until
	}
	a.cache.Set(raw, decision{principal: principal}, ttl)
	return principal, nil
}

// Revoke deny-lists jti until exp and drops the cached decision for raw.
func (a *Authorizer) Revoke(ctx context.Context, raw, jti string, exp time.Time) error {
	a.cache.Delete(NormalizeToken(raw))
	if jti == "" {
		return nil
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	if err := a.rdb.Set(ctx, denyListPrefix+jti, "1", ttl).Err(); err != nil {
		return kind.Wrap(kind.DependencyDown, "revocation store unavailable", err)
	}
	return nil
}

// RevokeJTI deny-lists a jti without a raw token in hand (refresh rotation).
func (a *Authorizer) RevokeJTI(ctx context.Context, jti string, exp time.Time) error {
	return a.Revoke(ctx, "", jti, exp)
}

// CacheSize reports the decision cache population, for diagnostics.
func (a *Authorizer) CacheSize() int { return a.cache.ItemCount() }

func (a *Authorizer) checkRevoked(ctx context.Context, jti string) error {
	if jti == "" || a.rdb == nil {
		return nil
	}
	n, err := a.rdb.Exists(ctx, denyListPrefix+jti).Result()
	if err != nil {
		// Fail closed: an unreachable revocation list must not turn a
		// logged-out token back on.
		a.logger.Warn("revocation check failed", zap.Error(err))
		return kind.Wrap(kind.DependencyDown, "revocation store unavailable", err)
	}
	if n > 0 {
		return kind.New(kind.AuthRevoked, "token revoked")
	}
	return nil
}

// Auth enforces bearer authentication and attaches the principal.
func Auth(authz *Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authz.Authorize(c.Request.Context(), extractToken(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// APIKey enforces the x-api-key header on public routes. Comparison is
// constant-time per configured key.
func APIKey(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := strings.TrimSpace(c.GetHeader("x-api-key"))
		if supplied == "" {
			response.Error(c, kind.New(kind.AuthMissing, "api key required"))
			return
		}
		for _, key := range keys {
			if len(key) == len(supplied) &&
				subtle.ConstantTimeCompare([]byte(key), []byte(supplied)) == 1 {
				c.Next()
				return
			}
		}
		response.Error(c, kind.New(kind.AuthMissing, "api key rejected"))
	}
}

// CurrentPrincipal extracts the authenticated principal from context.
func CurrentPrincipal(c *gin.Context) *token.Principal {
	v, _ := c.Get(ContextKeyPrincipal)
	p, _ := v.(*token.Principal)
	return p
}

// CurrentUserID extracts the authenticated user id from context.
func CurrentUserID(c *gin.Context) string {
	if p := CurrentPrincipal(c); p != nil {
		return p.UserID
	}
	return ""
}

// IsAuthenticated reports whether the request carries a valid principal.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	// WebSocket upgrades cannot set headers from the browser.
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(t), "bearer ") {
		return strings.TrimSpace(t[7:])
	}
	return t
}
