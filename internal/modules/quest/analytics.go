package quest

import (
	"context"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
)

const analyticsTTL = 10 * time.Minute

// periodWindow maps the period parameter to a lookback duration; zero means
// unbounded.
func periodWindow(period string) (time.Duration, bool) {
	switch period {
	case "", "30d":
		return 30 * 24 * time.Hour, true
	case "7d":
		return 7 * 24 * time.Hour, true
	case "90d":
		return 90 * 24 * time.Hour, true
	case "all":
		return 0, true
	}
	return 0, false
}

// Analytics aggregates the user's quests over the period. Results are cached
// per (user, period) for ten minutes.
func (s *Service) Analytics(ctx context.Context, userID, period string) (*AnalyticsReport, error) {
	window, ok := periodWindow(period)
	if !ok {
		return nil, kind.New(kind.ValidationFailed, "unknown period").
			WithFields(map[string]string{"period": "must be one of 7d, 30d, 90d, all"})
	}
	if period == "" {
		period = "30d"
	}

	cacheKey := userID + "|" + period
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*AnalyticsReport), nil
	}

	now := time.Now().UTC()
	var since time.Time
	if window > 0 {
		since = now.Add(-window)
	}

	report := &AnalyticsReport{
		Period:     period,
		Counts:     map[string]int{},
		ComputedAt: now,
	}
	var (
		completionTotal time.Duration
		terminal        int
	)
	page := store.Page{Limit: store.MaxLimit}
	for {
		quests, res, err := s.ListQuests(ctx, userID, page)
		if err != nil {
			return nil, err
		}
		for i := range quests {
			q := quests[i]
			if window > 0 && q.CreatedAt.Before(since) && (q.EndedAt == nil || q.EndedAt.Before(since)) {
				continue
			}
			report.Counts[q.State]++
			if models.QuestTerminal(q.State) {
				terminal++
			}
			if q.State == models.QuestCompleted {
				report.XPEarned += q.RewardXP
				if q.StartedAt != nil && q.EndedAt != nil {
					completionTotal += q.EndedAt.Sub(*q.StartedAt)
				}
			}
		}
		if !res.HasMore {
			break
		}
		page.Cursor = res.Cursor
	}

	if terminal > 0 {
		report.CompletionRate = float64(report.Counts[models.QuestCompleted]) / float64(terminal)
	}
	if n := report.Counts[models.QuestCompleted]; n > 0 {
		report.AvgCompletionSeconds = completionTotal.Seconds() / float64(n)
	}

	s.cache.Set(cacheKey, report, analyticsTTL)
	return report, nil
}
