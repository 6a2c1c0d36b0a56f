package quest

import (
	"context"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepConcurrency = 8

// Sweep reconciles one user's active quests: completed when the underlying
// goal reached full progress, failed when the deadline passed short of it.
// Re-running is a no-op; every transition is version-guarded and a lost race
// means another sweep already moved the quest.
func (s *Service) Sweep(ctx context.Context, userID string) (SweepReport, error) {
	report := SweepReport{}
	page := store.Page{Limit: store.MaxLimit}
	active := 0
	for {
		quests, res, err := s.ListQuests(ctx, userID, page)
		if err != nil {
			return report, err
		}
		for i := range quests {
			q := quests[i]
			report.Scanned++
			if q.State != models.QuestActive {
				continue
			}
			active++
			moved, to, err := s.sweepOne(ctx, &q)
			if err != nil {
				s.logger.Warn("sweep transition failed",
					zap.String("quest_id", q.QuestID), zap.Error(err))
				continue
			}
			if moved {
				active--
				if to == models.QuestCompleted {
					report.Completed++
				} else {
					report.Failed++
				}
			}
		}
		if !res.HasMore {
			break
		}
		page.Cursor = res.Cursor
	}

	if active == 0 && s.rdb != nil {
		if err := s.rdb.SRem(ctx, sweepSetKey, userID).Err(); err != nil {
			s.logger.Warn("sweep set remove failed", zap.Error(err))
		}
	}
	return report, nil
}

func (s *Service) sweepOne(ctx context.Context, q *models.Quest) (bool, string, error) {
	now := time.Now().UTC()

	done := false
	if q.GoalID != "" {
		view, err := s.goals.GoalProgress(ctx, q.UserID, q.GoalID)
		if err != nil {
			if kind.Is(err, kind.NotFound) {
				// Goal deleted out from under the quest: deadline rules
				// still apply below.
				view = nil
			} else {
				return false, "", err
			}
		}
		// Epsilon absorbs float drift in the weighted progress sum.
		done = view != nil && view.Progress+1e-9 >= 1.0
	}

	switch {
	case done:
		if _, err := s.Complete(ctx, q.UserID, q.QuestID); err != nil {
			return s.tolerateRace(err)
		}
		return true, models.QuestCompleted, nil
	case q.Deadline != nil && q.Deadline.Before(now):
		if _, err := s.Fail(ctx, q.UserID, q.QuestID); err != nil {
			return s.tolerateRace(err)
		}
		return true, models.QuestFailed, nil
	}
	return false, "", nil
}

// tolerateRace swallows the conflicts a concurrent sweep produces.
func (s *Service) tolerateRace(err error) (bool, string, error) {
	switch kind.Of(err) {
	case kind.ConflictVersion, kind.ConflictState, kind.GoneTerminal:
		return false, "", nil
	}
	return false, "", err
}

// SweepAll visits every user in the sweep set with bounded concurrency. Used
// by the cron job.
func (s *Service) SweepAll(ctx context.Context) (SweepReport, error) {
	if s.rdb == nil {
		return SweepReport{}, nil
	}
	users, err := s.rdb.SMembers(ctx, sweepSetKey).Result()
	if err != nil {
		return SweepReport{}, kind.Wrap(kind.DependencyDown, "sweep set read failed", err)
	}

	var total SweepReport
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	reports := make([]SweepReport, len(users))
	for i, userID := range users {
		i, userID := i, userID
		g.Go(func() error {
			report, err := s.Sweep(gctx, userID)
			if err != nil {
				s.logger.Warn("user sweep failed", zap.String("user_id", userID), zap.Error(err))
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	for _, r := range reports {
		total.Scanned += r.Scanned
		total.Completed += r.Completed
		total.Failed += r.Failed
	}
	return total, nil
}
