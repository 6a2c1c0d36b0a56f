package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

const signaturePrefix = "sha256="

const ledgerLimit = 10

type Service struct {
	st     *store.Store
	secret []byte
	logger *zap.Logger
}

func NewService(st *store.Store, secret string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		st:     st,
		secret: []byte(secret),
		logger: logger.Named("Billing"),
	}
}

// VerifySignature checks the X-Signature header against the raw body HMAC.
// Comparison is constant time.
func (s *Service) VerifySignature(body []byte, header string) error {
	if len(s.secret) == 0 {
		return kind.New(kind.DependencyDown, "webhook secret is not configured")
	}
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) {
		return kind.New(kind.AuthMissing, "signature required")
	}
	supplied, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return kind.New(kind.AuthSignature, "signature rejected")
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(supplied, mac.Sum(nil)) {
		return kind.New(kind.AuthSignature, "signature rejected")
	}
	return nil
}

// HandleEvent applies one delivery. The ledger row is the idempotency
// marker: a replayed event id short-circuits before the tier moves.
func (s *Service) HandleEvent(ctx context.Context, ev WebhookEvent) error {
	var verr validate.Errors
	userID := validate.UUID(&verr, "user_id", ev.UserID)
	if strings.TrimSpace(ev.EventID) == "" {
		verr.Add("event_id", "is required")
	}
	eventType := validate.Enum(&verr, "type", ev.Type, models.SubActivated, models.SubCanceled)
	if err := verr.Err(); err != nil {
		return err
	}

	tier := models.TierDefault
	if eventType == models.SubActivated {
		tier = ev.Tier
		if tier == "" {
			tier = models.TierPremium
		}
		if !models.ValidTier(tier) {
			return kind.New(kind.ValidationFailed, "unknown tier")
		}
	}

	now := time.Now().UTC()
	ledger := models.NewSubscriptionEvent(userID, ev.EventID, eventType, tier, now)
	if err := s.st.PutIfAbsent(ctx, ledger); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			s.logger.Info("duplicate delivery skipped",
				zap.String("event_id", ev.EventID))
			return nil
		}
		return err
	}

	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var profile models.UserProfile
		if err := s.st.GetConsistent(ctx, models.UserPK(userID), models.SKProfile, &profile); err != nil {
			return err
		}
		profile.Tier = tier
		profile.UpdatedAt = now
		return s.st.UpdateWithVersion(ctx, &profile, profile.Version)
	})
	if err != nil {
		return err
	}
	s.logger.Info("tier changed",
		zap.String("user_id", userID), zap.String("tier", tier))
	return nil
}

// Subscription returns the caller's tier and recent ledger entries.
func (s *Service) Subscription(ctx context.Context, userID string) (*SubscriptionView, error) {
	var profile models.UserProfile
	if err := s.st.Get(ctx, models.UserPK(userID), models.SKProfile, &profile); err != nil {
		return nil, err
	}
	ledger, _, err := store.QueryPartition[models.SubscriptionEvent](ctx, s.st, models.UserPK(userID), models.PrefixSubEvent, store.Page{Limit: ledgerLimit, Descending: true})
	if err != nil {
		return nil, err
	}
	return &SubscriptionView{Tier: profile.Tier, Ledger: ledger}, nil
}
