package models

import "time"

// Subscription webhook event types.
const (
	SubActivated = "subscription.activated"
	SubCanceled  = "subscription.canceled"
)

// SubscriptionEvent is one ledger row per processed webhook delivery. The
// row doubles as the idempotency marker: a redelivered event id fails its
// conditional put and is skipped.
type SubscriptionEvent struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	EventID   string    `dynamodbav:"eventId" json:"event_id"`
	UserID    string    `dynamodbav:"userId" json:"user_id"`
	Type      string    `dynamodbav:"type" json:"type"`
	Tier      string    `dynamodbav:"tier" json:"tier"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewSubscriptionEvent(userID, eventID, eventType, tier string, now time.Time) *SubscriptionEvent {
	return &SubscriptionEvent{
		PK:        UserPK(userID),
		SK:        SubEventSK(eventID),
		EventID:   eventID,
		UserID:    userID,
		Type:      eventType,
		Tier:      tier,
		CreatedAt: now,
	}
}
