package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/response"
	"github.com/redis/go-redis/v9"
)

// UsagePlan bounds one tier: a steady per-minute rate with burst headroom
// and a daily quota.
type UsagePlan struct {
	PerMinute  int
	Burst      int
	DailyQuota int
}

// DefaultUsagePlans is the shipped tier table.
var DefaultUsagePlans = map[string]UsagePlan{
	models.TierDefault: {PerMinute: 60, Burst: 20, DailyQuota: 5000},
	models.TierPremium: {PerMinute: 300, Burst: 100, DailyQuota: 50000},
	models.TierAdmin:   {PerMinute: 600, Burst: 200, DailyQuota: 200000},
}

// UsagePlanThrottle enforces the authenticated principal's tier plan.
// Runs after Auth.
func UsagePlanThrottle(rdb *redis.Client, plans map[string]UsagePlan) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil || rdb == nil {
			c.Next()
			return
		}
		plan, ok := plans[p.Tier]
		if !ok {
			plan = plans[models.TierDefault]
		}
		ctx := c.Request.Context()

		minuteKey := fmt.Sprintf("ql:plan:%s:%s:%d", p.Tier, p.UserID, time.Now().Unix()/60)
		count, err := bumpCounter(ctx, rdb, minuteKey, 2*time.Minute)
		if err == nil && count > int64(plan.PerMinute+plan.Burst) {
			response.Error(c, kind.New(kind.Throttled, "usage plan rate exceeded"))
			return
		}

		dayKey := fmt.Sprintf("ql:quota:%s:%s", p.UserID, time.Now().UTC().Format("2006-01-02"))
		count, err = bumpCounter(ctx, rdb, dayKey, 25*time.Hour)
		if err == nil && count > int64(plan.DailyQuota) {
			response.Error(c, kind.New(kind.Throttled, "daily quota exceeded"))
			return
		}
		c.Next()
	}
}

// AuthWithPlan authenticates and then applies the caller's usage plan, as
// one middleware so route groups get the ordering right by construction.
func AuthWithPlan(authz *Authorizer, rdb *redis.Client, plans map[string]UsagePlan) gin.HandlerFunc {
	plan := UsagePlanThrottle(rdb, plans)
	return func(c *gin.Context) {
		principal, err := authz.Authorize(c.Request.Context(), extractToken(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(ContextKeyPrincipal, principal)
		plan(c)
	}
}

// SensitiveThrottle applies a tighter per-user rate to one route. Runs
// after Auth.
func SensitiveThrottle(rdb *redis.Client, name string, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CurrentUserID(c)
		if userID == "" || rdb == nil {
			c.Next()
			return
		}
		key := fmt.Sprintf("ql:sensitive:%s:%s:%d", name, userID, time.Now().Unix()/60)
		count, err := bumpCounter(c.Request.Context(), rdb, key, 2*time.Minute)
		if err == nil && count > int64(perMinute) {
			response.Error(c, kind.Newf(kind.Throttled, "rate limit for %s exceeded", name))
			return
		}
		c.Next()
	}
}

const ipWindow = 5 * time.Minute

// IPThrottle enforces the edge-wide per-IP limit over a 5-minute sliding
// window, estimated from the current and previous fixed buckets weighted
// by overlap.
func IPThrottle(rdb *redis.Client, limit int) gin.HandlerFunc {
	windowSecs := int64(ipWindow / time.Second)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" || rdb == nil || limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		now := time.Now().Unix()
		bucket := now / windowSecs

		curKey := fmt.Sprintf("ql:ip:%s:%d", ip, bucket)
		prevKey := fmt.Sprintf("ql:ip:%s:%d", ip, bucket-1)

		cur, err := bumpCounter(ctx, rdb, curKey, 2*ipWindow)
		if err != nil {
			// Redis being down must not take the edge with it.
			c.Next()
			return
		}
		prev, _ := rdb.Get(ctx, prevKey).Int64()

		elapsed := float64(now%windowSecs) / float64(windowSecs)
		estimate := float64(cur) + float64(prev)*(1-elapsed)
		if estimate > float64(limit) {
			c.Header("Retry-After", "60")
			response.Error(c, kind.New(kind.Throttled, "too many requests from this address"))
			return
		}
		c.Next()
	}
}

func bumpCounter(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (int64, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		rdb.Expire(ctx, key, ttl)
	}
	return count, nil
}
