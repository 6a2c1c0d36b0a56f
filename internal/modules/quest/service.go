package quest

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/modules/goal"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// sweepSetKey holds the users with at least one active quest, so the cron
// sweep knows whose partitions to visit.
const sweepSetKey = "ql:sweep:users"

type Service struct {
	st     *store.Store
	goals  *goal.Service
	bus    *events.Bus
	rdb    *redis.Client
	cache  *gocache.Cache
	logger *zap.Logger
}

func NewService(st *store.Store, goals *goal.Service, bus *events.Bus, rdb *redis.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		st:     st,
		goals:  goals,
		bus:    bus,
		rdb:    rdb,
		cache:  gocache.New(10*time.Minute, 20*time.Minute),
		logger: logger.Named("Quest"),
	}
}

func (s *Service) CreateQuest(ctx context.Context, userID string, req CreateQuestRequest) (*models.Quest, error) {
	var verr validate.Errors
	title := validate.Text(&verr, "title", req.Title, validate.MaxTitleLen)
	description := validate.OptionalText(&verr, "description", req.Description, validate.MaxDescriptionLen)
	rewardXP := validate.IntRange(&verr, "reward_xp", req.RewardXP, validate.MinRewardXP, validate.MaxRewardXP)
	now := time.Now().UTC()
	if req.Deadline != nil {
		validate.Deadline(&verr, "deadline", *req.Deadline, now)
	}
	goalID := ""
	if req.GoalID != "" {
		goalID = validate.UUID(&verr, "goal_id", req.GoalID)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if goalID != "" {
		if _, err := s.goals.GetGoal(ctx, userID, goalID); err != nil {
			return nil, err
		}
	}

	q := models.NewQuest(userID, uuid.NewString(), title, now)
	q.Description = description
	q.GoalID = goalID
	q.RewardXP = rewardXP
	q.Deadline = req.Deadline
	if err := s.st.PutIfAbsent(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) GetQuest(ctx context.Context, userID, questID string) (*models.Quest, error) {
	var verr validate.Errors
	questID = validate.UUID(&verr, "quest_id", questID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	var q models.Quest
	if err := s.st.Get(ctx, models.UserPK(userID), models.QuestSK(questID), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Service) ListQuests(ctx context.Context, userID string, page store.Page) ([]models.Quest, store.Result, error) {
	return store.QueryPartition[models.Quest](ctx, s.st, models.UserPK(userID), models.PrefixQuest, page)
}

// UpdateQuest edits a quest. Edits are allowed only while the quest is a
// draft.
func (s *Service) UpdateQuest(ctx context.Context, userID, questID string, req UpdateQuestRequest) (*models.Quest, error) {
	var verr validate.Errors
	questID = validate.UUID(&verr, "quest_id", questID)
	var title, description, goalID string
	rewardXP := 0
	now := time.Now().UTC()
	if req.Title != nil {
		title = validate.Text(&verr, "title", *req.Title, validate.MaxTitleLen)
	}
	if req.Description != nil {
		description = validate.OptionalText(&verr, "description", *req.Description, validate.MaxDescriptionLen)
	}
	if req.RewardXP != nil {
		rewardXP = validate.IntRange(&verr, "reward_xp", *req.RewardXP, validate.MinRewardXP, validate.MaxRewardXP)
	}
	if req.Deadline != nil {
		validate.Deadline(&verr, "deadline", *req.Deadline, now)
	}
	if req.GoalID != nil && *req.GoalID != "" {
		goalID = validate.UUID(&verr, "goal_id", *req.GoalID)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var updated *models.Quest
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var q models.Quest
		if err := s.st.GetConsistent(ctx, models.UserPK(userID), models.QuestSK(questID), &q); err != nil {
			return err
		}
		if models.QuestTerminal(q.State) {
			return kind.New(kind.GoneTerminal, "quest is in a terminal state")
		}
		if q.State != models.QuestDraft {
			return kind.New(kind.ConflictState, "only draft quests can be edited")
		}
		if req.Title != nil {
			q.Title = title
		}
		if req.Description != nil {
			q.Description = description
		}
		if req.RewardXP != nil {
			q.RewardXP = rewardXP
		}
		if req.Deadline != nil {
			q.Deadline = req.Deadline
		}
		if req.GoalID != nil {
			q.GoalID = goalID
		}
		q.UpdatedAt = now
		if err := s.st.UpdateWithVersion(ctx, &q, q.Version); err != nil {
			return err
		}
		q.Version++
		updated = &q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Start(ctx context.Context, userID, questID string) (*models.Quest, error) {
	return s.transition(ctx, userID, questID, models.QuestActive)
}

func (s *Service) Cancel(ctx context.Context, userID, questID string) (*models.Quest, error) {
	return s.transition(ctx, userID, questID, models.QuestCancelled)
}

func (s *Service) Fail(ctx context.Context, userID, questID string) (*models.Quest, error) {
	return s.transition(ctx, userID, questID, models.QuestFailed)
}

func (s *Service) Complete(ctx context.Context, userID, questID string) (*models.Quest, error) {
	return s.transition(ctx, userID, questID, models.QuestCompleted)
}

// transition moves the quest to its next state under the version check.
// Races are not retried: a concurrent transition from the same source state
// must surface as a conflict, not silently win twice.
func (s *Service) transition(ctx context.Context, userID, questID, to string) (*models.Quest, error) {
	var verr validate.Errors
	questID = validate.UUID(&verr, "quest_id", questID)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var q models.Quest
	if err := s.st.Get(ctx, models.UserPK(userID), models.QuestSK(questID), &q); err != nil {
		return nil, err
	}
	if models.QuestTerminal(q.State) {
		return nil, kind.Newf(kind.GoneTerminal, "quest is %s", q.State)
	}
	if !models.QuestCanTransition(q.State, to) {
		return nil, kind.Newf(kind.ConflictState, "cannot %s a %s quest", to, q.State)
	}

	now := time.Now().UTC()
	switch to {
	case models.QuestActive:
		q.StartedAt = &now
	default:
		q.EndedAt = &now
	}
	q.State = to
	q.UpdatedAt = now
	if err := s.st.UpdateWithVersion(ctx, &q, q.Version); err != nil {
		return nil, err
	}
	q.Version++

	s.noteSweepMembership(ctx, userID, to)
	if to == models.QuestCompleted && s.bus != nil {
		s.bus.Publish(ctx, events.New(events.QuestCompleted, userID, questID))
	}
	return &q, nil
}

// noteSweepMembership keeps the cron sweep's user set current. Best effort;
// the sweep tolerates stale members.
func (s *Service) noteSweepMembership(ctx context.Context, userID, to string) {
	if s.rdb == nil {
		return
	}
	if to == models.QuestActive {
		if err := s.rdb.SAdd(ctx, sweepSetKey, userID).Err(); err != nil {
			s.logger.Warn("sweep set add failed", zap.Error(err))
		}
	}
}
