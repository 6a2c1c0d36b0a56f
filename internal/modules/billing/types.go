package billing

import "github.com/questline/core/internal/models"

// WebhookEvent is the inbound delivery body. EventID deduplicates retries.
type WebhookEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Tier    string `json:"tier"`
}

// SubscriptionView is the caller-facing summary: current tier plus the
// recent ledger.
type SubscriptionView struct {
	Tier   string                     `json:"tier"`
	Ledger []models.SubscriptionEvent `json:"ledger"`
}
