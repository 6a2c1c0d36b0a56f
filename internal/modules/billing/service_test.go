package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
	"github.com/questline/core/internal/store/storetest"
	assert "github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func newBillingService(t *testing.T) (*Service, string) {
	t.Helper()
	st := store.New(storetest.New(), "core-test", nil)
	userID := uuid.NewString()
	profile := models.NewUserProfile(userID, "b@example.com", "payer", "hash", time.Now().UTC())
	assert.NoError(t, st.Put(context.Background(), profile))
	return NewService(st, testSecret, nil), userID
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc, _ := newBillingService(t)
	body := []byte(`{"event_id":"evt_1"}`)

	assert.NoError(t, svc.VerifySignature(body, sign(body)))

	assert.True(t, kind.Is(svc.VerifySignature(body, ""), kind.AuthMissing))
	assert.True(t, kind.Is(svc.VerifySignature(body, "sha256=zzzz"), kind.AuthSignature))
	assert.True(t, kind.Is(svc.VerifySignature(body, sign([]byte("other body"))), kind.AuthSignature))

	unconfigured := NewService(store.New(storetest.New(), "core-test", nil), "", nil)
	assert.True(t, kind.Is(unconfigured.VerifySignature(body, sign(body)), kind.DependencyDown))
}

func TestHandleEventActivatesAndCancels(t *testing.T) {
	svc, userID := newBillingService(t)
	ctx := context.Background()

	err := svc.HandleEvent(ctx, WebhookEvent{EventID: "evt_1", Type: models.SubActivated, UserID: userID})
	assert.NoError(t, err)
	view, err := svc.Subscription(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, models.TierPremium, view.Tier)
	assert.Len(t, view.Ledger, 1)

	err = svc.HandleEvent(ctx, WebhookEvent{EventID: "evt_2", Type: models.SubCanceled, UserID: userID})
	assert.NoError(t, err)
	view, err = svc.Subscription(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, models.TierDefault, view.Tier)
	assert.Len(t, view.Ledger, 2)
}

func TestHandleEventExplicitTier(t *testing.T) {
	svc, userID := newBillingService(t)
	ctx := context.Background()

	err := svc.HandleEvent(ctx, WebhookEvent{EventID: "evt_1", Type: models.SubActivated, UserID: userID, Tier: models.TierAdmin})
	assert.NoError(t, err)
	view, err := svc.Subscription(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, models.TierAdmin, view.Tier)

	err = svc.HandleEvent(ctx, WebhookEvent{EventID: "evt_2", Type: models.SubActivated, UserID: userID, Tier: "platinum"})
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestHandleEventDuplicateDelivery(t *testing.T) {
	svc, userID := newBillingService(t)
	ctx := context.Background()

	ev := WebhookEvent{EventID: "evt_1", Type: models.SubActivated, UserID: userID}
	assert.NoError(t, svc.HandleEvent(ctx, ev))

	// The provider retries; the tier moves once and the ledger stays flat.
	assert.NoError(t, svc.HandleEvent(ctx, ev))
	view, err := svc.Subscription(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, models.TierPremium, view.Tier)
	assert.Len(t, view.Ledger, 1)
}

func TestHandleEventValidation(t *testing.T) {
	svc, userID := newBillingService(t)
	ctx := context.Background()

	assert.True(t, kind.Is(svc.HandleEvent(ctx, WebhookEvent{EventID: "e", Type: models.SubActivated, UserID: "not-a-uuid"}), kind.ValidationFailed))
	assert.True(t, kind.Is(svc.HandleEvent(ctx, WebhookEvent{EventID: "", Type: models.SubActivated, UserID: userID}), kind.ValidationFailed))
	assert.True(t, kind.Is(svc.HandleEvent(ctx, WebhookEvent{EventID: "e", Type: "subscription.paused", UserID: userID}), kind.ValidationFailed))
}

func TestHandleEventUnknownUser(t *testing.T) {
	svc, _ := newBillingService(t)
	err := svc.HandleEvent(context.Background(), WebhookEvent{EventID: "evt_1", Type: models.SubActivated, UserID: uuid.NewString()})
	assert.True(t, kind.Is(err, kind.NotFound))
}
