package app

import (
	"context"
	"time"

	pkgcron "github.com/questline/core/internal/pkg/cron"
	"github.com/questline/core/internal/pkg/ratelimit"
	"go.uber.org/zap"
)

func registerCronJobs(sched *pkgcron.Scheduler, s services, logger *zap.Logger) {
	log := logger.Named("Cron")

	sched.Register(pkgcron.Job{
		Name:        "quest_auto_completion",
		Description: "Reconcile active quests against goal progress and deadlines",
		Interval:    10 * time.Minute,
		Fn: func(ctx context.Context) error {
			report, err := s.quests.SweepAll(ctx)
			if err != nil {
				return err
			}
			log.Info("quest sweep finished",
				zap.Int("scanned", report.Scanned),
				zap.Int("completed", report.Completed),
				zap.Int("failed", report.Failed))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "guild_rankings",
		Description: "Recompute guild ranking scores",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			return s.guilds.RecomputeRankings(ctx)
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "ratelimit_sweep",
		Description: "Evict expired in-memory rate limit entries",
		Interval:    time.Minute,
		Fn: func(ctx context.Context) error {
			var windows []*ratelimit.Window
			windows = append(windows, s.collab.Windows()...)
			windows = append(windows, s.guilds.Windows()...)
			windows = append(windows, s.chat.Windows()...)
			now := time.Now()
			evicted := 0
			for _, w := range windows {
				evicted += w.Sweep(now)
			}
			if evicted > 0 {
				log.Debug("rate limit sweep", zap.Int("evicted", evicted))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "authorizer_cache_sweep",
		Description: "Report token decision cache occupancy",
		Interval:    5 * time.Minute,
		Fn: func(ctx context.Context) error {
			log.Debug("authorizer cache", zap.Int("decisions", s.authz.CacheSize()))
			return nil
		},
	})
}
