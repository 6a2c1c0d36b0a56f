package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/config"
	"github.com/questline/core/internal/database"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/modules/billing"
	"github.com/questline/core/internal/modules/chat"
	"github.com/questline/core/internal/modules/collab"
	"github.com/questline/core/internal/modules/gamify"
	"github.com/questline/core/internal/modules/goal"
	"github.com/questline/core/internal/modules/guild"
	"github.com/questline/core/internal/modules/identity"
	"github.com/questline/core/internal/modules/quest"
	"github.com/questline/core/internal/pkg/audit"
	pkgcron "github.com/questline/core/internal/pkg/cron"
	"github.com/questline/core/internal/pkg/events"
	pkgredis "github.com/questline/core/internal/pkg/redis"
	"github.com/questline/core/internal/pkg/token"
	"github.com/questline/core/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	hub    *chat.Hub
	sched  *pkgcron.Scheduler
	redis  *pkgredis.Client
	logger *zap.Logger
	cancel context.CancelFunc
}

// services bundles the constructed module services so route and cron
// registration take one argument.
type services struct {
	rdb      *redis.Client
	secret   []byte
	authz    *middleware.Authorizer
	identity *identity.Service
	goals    *goal.Service
	quests   *quest.Service
	collab   *collab.Service
	guilds   *guild.Service
	chat     *chat.Service
	billing  *billing.Service
}

// New initializes the application: config, AWS clients, Redis, services,
// routes, cron.
func New(logger *zap.Logger, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	clients, err := database.Connect(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("aws: %w", err)
	}
	secret, err := clients.ResolveJWTSecret(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwt secret: %w", err)
	}
	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis: %w", err)
	}
	rdb := rc.Raw()

	var issuerKeys *token.JWKSCache
	if cfg.JWT.JWKSURL != "" {
		issuerKeys = token.NewJWKSCache(cfg.JWT.JWKSURL)
	}
	issuer := token.NewIssuer(secret, cfg.JWT.Issuer, cfg.JWT.Audience, issuerKeys)

	var federated *token.FederatedVerifier
	if cfg.JWT.FederatedJWKSURL != "" {
		federated = token.NewFederatedVerifier(
			cfg.JWT.FederatedIssuer,
			cfg.JWT.FederatedAudience,
			token.NewJWKSCache(cfg.JWT.FederatedJWKSURL))
	}

	coreStore := store.New(clients.Dynamo, cfg.Tables.Core, logger)
	guildStore := store.New(clients.Dynamo, cfg.Tables.Guild, logger)
	bus := events.NewBus(logger)
	authz := middleware.NewAuthorizer(issuer, rdb, logger)

	goalSvc := goal.NewService(coreStore, bus, logger)
	questSvc := quest.NewService(coreStore, goalSvc, bus, rdb, logger)
	gamify.NewService(coreStore, logger).Attach(bus)
	collabSvc := collab.NewService(coreStore, bus,
		cfg.Limits.InvitesPerUserPerHour, cfg.Limits.CommentsPerUserPerHour, logger)

	var avatars *guild.S3Avatars
	guildSvc := guild.NewService(guildStore, coreStore, bus, nil,
		cfg.Avatar, cfg.Limits.CommentsPerUserPerHour, logger)
	if cfg.AWS.AvatarBucket != "" {
		avatars = guild.NewS3Avatars(clients.S3, cfg.AWS.AvatarBucket)
		guildSvc = guild.NewService(guildStore, coreStore, bus, avatars,
			cfg.Avatar, cfg.Limits.CommentsPerUserPerHour, logger)
	}

	hub := chat.NewHub()
	chatSvc := chat.NewService(guildStore, hub, guildSvc,
		cfg.Limits.ChatMessagesPerMinute, logger)

	svcs := services{
		rdb:      rdb,
		secret:   secret,
		authz:    authz,
		identity: identity.NewService(coreStore, issuer, federated, authz, cfg.Argon, logger),
		goals:    goalSvc,
		quests:   questSvc,
		collab:   collabSvc,
		guilds:   guildSvc,
		chat:     chatSvc,
		billing:  billing.NewService(coreStore, cfg.Webhook.SubscriptionSecret, logger),
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.AuditTrail(audit.New(logger)))
	router.Use(cors.New(buildCORSConfig(cfg)))
	router.Use(middleware.IPThrottle(rdb, cfg.Limits.IPRequestsPer5Min))
	router.Use(middleware.Idempotence(rdb))

	sched := pkgcron.New()
	registerCronJobs(sched, svcs, logger)
	go sched.Start(ctx)

	app := &App{
		cfg:    cfg,
		router: router,
		hub:    hub,
		sched:  sched,
		redis:  rc,
		logger: logger,
		cancel: cancel,
	}
	app.registerRoutes(svcs)
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and releases the redis pool.
func (a *App) Shutdown() {
	a.cancel()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close", zap.Error(err))
		}
	}
}

var processStart = time.Now()
