package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/modules/billing"
	"github.com/questline/core/internal/modules/chat"
	"github.com/questline/core/internal/modules/collab"
	"github.com/questline/core/internal/modules/goal"
	"github.com/questline/core/internal/modules/guild"
	"github.com/questline/core/internal/modules/identity"
	"github.com/questline/core/internal/modules/quest"
	"github.com/questline/core/internal/pkg/response"
)

func (a *App) registerRoutes(s services) {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	authMW := middleware.AuthWithPlan(s.authz, s.rdb, middleware.DefaultUsagePlans)

	cacheFn := middleware.CacheWith(s.rdb, s.secret)
	if a.cfg.Cache.Disable || a.cfg.IsDev() {
		cacheFn = middleware.PassthroughCache
	}

	var apiKeyMW gin.HandlerFunc
	if len(a.cfg.APIKeys) > 0 {
		apiKeyMW = middleware.APIKey(a.cfg.APIKeys)
	} else {
		apiKeyMW = func(c *gin.Context) { c.Next() }
	}

	sensitive := func(name string) gin.HandlerFunc {
		return middleware.SensitiveThrottle(s.rdb, name, 10)
	}

	root := r.Group("")
	identity.NewHandler(s.identity, cacheFn, apiKeyMW).RegisterRoutes(root, authMW)
	goal.NewHandler(s.goals, cacheFn, sensitive("goal-write")).RegisterRoutes(root, authMW)
	quest.NewHandler(s.quests, cacheFn, sensitive("quest-write"), apiKeyMW).RegisterRoutes(root, authMW)
	collab.NewHandler(s.collab).RegisterRoutes(root, authMW)
	guild.NewHandler(s.guilds, cacheFn, sensitive("guild-write")).RegisterRoutes(root, authMW)
	chat.NewHandler(s.chat, a.hub, a.cfg.AllowedOrigins, a.logger).RegisterRoutes(root, authMW)
	billing.NewHandler(s.billing, apiKeyMW).RegisterRoutes(root, authMW)

	root.GET("/health", apiKeyMW, a.health)
	root.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "pong"})
	})
}

func (a *App) health(c *gin.Context) {
	uptime := time.Since(processStart)
	response.OK(c, gin.H{
		"status": "ok",
		"env":    a.cfg.Env,
		"uptime": gin.H{
			"ms":       uptime.Milliseconds(),
			"humanize": humanizeDuration(uptime),
		},
		"chat": gin.H{
			"rooms":       a.hub.RoomCount(),
			"connections": a.hub.ConnCount(),
		},
		"jobs": a.sched.List(),
	})
}
