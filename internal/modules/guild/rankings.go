package guild

import (
	"context"
	"sort"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ranking weights. Member count seeds the score so young active guilds do
// not drown out established ones; completions carry the rest.
const (
	rankingConcurrency   = 4
	rankingMemberWeight  = 10.0
	rankingGoalWeight    = 5.0
	rankingQuestWeight   = 3.0
	rankingMemberScanCap = 200
)

// ListRankings returns public guilds ordered by their last computed score.
// Scores come from the hourly job; this path never aggregates.
func (s *Service) ListRankings(ctx context.Context, page store.Page) ([]models.Guild, store.Result, error) {
	page.Descending = true
	guilds, res, err := store.QueryIndex[models.Guild](ctx, s.st, models.IndexGuildTypeCreatedAt, models.GuildTypePK(models.GuildPublic), "", page)
	if err != nil {
		return nil, store.Result{}, err
	}
	sort.SliceStable(guilds, func(i, j int) bool {
		return guilds[i].RankingScore > guilds[j].RankingScore
	})
	return guilds, res, nil
}

// RecomputeRankings rescores every public and approval guild. Per-guild
// failures are logged and skipped; the sweep keeps going.
func (s *Service) RecomputeRankings(ctx context.Context) error {
	now := time.Now().UTC()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(rankingConcurrency)

	for _, guildType := range []string{models.GuildPublic, models.GuildApproval} {
		page := store.Page{Limit: store.MaxLimit}
		for {
			guilds, res, err := store.QueryIndex[models.Guild](ctx, s.st, models.IndexGuildTypeCreatedAt, models.GuildTypePK(guildType), "", page)
			if err != nil {
				return err
			}
			for i := range guilds {
				guildID := guilds[i].GuildID
				g.Go(func() error {
					if err := s.rescoreGuild(ctx, guildID, now); err != nil {
						s.logger.Warn("guild rescore failed",
							zap.String("guild_id", guildID), zap.Error(err))
					}
					return nil
				})
			}
			if !res.HasMore {
				break
			}
			page.Cursor = res.Cursor
		}
	}
	return g.Wait()
}

func (s *Service) rescoreGuild(ctx context.Context, guildID string, now time.Time) error {
	members, err := s.allMembers(ctx, guildID)
	if err != nil {
		return err
	}

	score := float64(len(members)) * rankingMemberWeight
	for _, m := range members {
		goals, quests, err := s.memberCompletions(ctx, m.UserID)
		if err != nil {
			return err
		}
		score += float64(goals)*rankingGoalWeight + float64(quests)*rankingQuestWeight
	}

	return store.RetryVersioned(ctx, func(ctx context.Context) error {
		var g models.Guild
		if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
			return err
		}
		g.RankingScore = score
		rankedAt := now
		g.RankedAt = &rankedAt
		return s.st.UpdateWithVersion(ctx, &g, g.Version)
	})
}

// allMembers reads up to rankingMemberScanCap memberships; beyond the cap
// the member-count term already dominates the score.
func (s *Service) allMembers(ctx context.Context, guildID string) ([]models.GuildMember, error) {
	var members []models.GuildMember
	page := store.Page{Limit: store.MaxLimit}
	for {
		batch, res, err := store.QueryPartition[models.GuildMember](ctx, s.st, models.GuildPK(guildID), models.PrefixMember, page)
		if err != nil {
			return nil, err
		}
		members = append(members, batch...)
		if !res.HasMore || len(members) >= rankingMemberScanCap {
			return members, nil
		}
		page.Cursor = res.Cursor
	}
}

// memberCompletions counts one member's completed goals and quests on the
// core table.
func (s *Service) memberCompletions(ctx context.Context, userID string) (int, int, error) {
	var goals, quests int

	page := store.Page{Limit: store.MaxLimit}
	for {
		batch, res, err := store.QueryPartition[models.Goal](ctx, s.core, models.UserPK(userID), models.PrefixGoal, page)
		if err != nil {
			return 0, 0, err
		}
		for _, g := range batch {
			// Task rows share the GOAL# prefix but carry no status.
			if g.Status == models.GoalCompleted {
				goals++
			}
		}
		if !res.HasMore {
			break
		}
		page.Cursor = res.Cursor
	}

	page = store.Page{Limit: store.MaxLimit}
	for {
		batch, res, err := store.QueryPartition[models.Quest](ctx, s.core, models.UserPK(userID), models.PrefixQuest, page)
		if err != nil {
			return 0, 0, err
		}
		for _, q := range batch {
			if q.State == models.QuestCompleted {
				quests++
			}
		}
		if !res.HasMore {
			break
		}
		page.Cursor = res.Cursor
	}

	return goals, quests, nil
}
