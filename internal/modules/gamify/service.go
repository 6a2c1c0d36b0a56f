package gamify

import (
	"context"
	"errors"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

// Service applies gamification rules to domain events. Replays are safe: a
// ledger row per event id is written before the score, so an event applies
// at most once.
type Service struct {
	st     *store.Store
	logger *zap.Logger
}

func NewService(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{st: st, logger: logger.Named("Gamify")}
}

// Attach subscribes the service to the event bus.
func (s *Service) Attach(bus *events.Bus) {
	bus.Subscribe(s.Apply)
}

// Apply awards XP and badges for one event.
func (s *Service) Apply(ctx context.Context, ev events.Event) error {
	rule, ok := rules[ev.Type]
	if !ok || ev.UserID == "" {
		return nil
	}

	ledger := models.NewEventLedger(ev.UserID, ev.ID, ev.Type, time.Now().UTC())
	if err := s.st.PutIfAbsent(ctx, ledger); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			// Replay; already applied.
			return nil
		}
		return err
	}

	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var profile models.UserProfile
		if err := s.st.GetConsistent(ctx, models.UserPK(ev.UserID), models.SKProfile, &profile); err != nil {
			return err
		}
		profile.Score += int64(rule.XP)
		profile.Level = LevelFor(profile.Score)
		profile.Badges = append(profile.Badges, badgesFor(profile.Score, profile.Badges)...)
		profile.UpdatedAt = time.Now().UTC()
		if err := s.st.UpdateWithVersion(ctx, &profile, profile.Version); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("score update failed",
			zap.String("user_id", ev.UserID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return err
	}
	return nil
}
