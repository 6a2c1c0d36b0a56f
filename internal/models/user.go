package models

import "time"

// Tier values, ordered by privilege.
const (
	TierDefault = "default"
	TierPremium = "premium"
	TierAdmin   = "admin"
)

// ValidTier reports whether t is a known tier.
func ValidTier(t string) bool {
	switch t {
	case TierDefault, TierPremium, TierAdmin:
		return true
	}
	return false
}

// UserProfile is the scalar profile row. Users are never hard-deleted;
// Disabled flips instead.
type UserProfile struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	UserID    string   `dynamodbav:"userId" json:"id"`
	Email     string   `dynamodbav:"email" json:"email"`
	Nickname  string   `dynamodbav:"nickname" json:"nickname"`
	Bio       string   `dynamodbav:"bio,omitempty" json:"bio,omitempty"`
	AvatarURL string   `dynamodbav:"avatarUrl,omitempty" json:"avatar_url,omitempty"`
	Tier      string   `dynamodbav:"tier" json:"tier"`
	Score     int64    `dynamodbav:"score" json:"score"`
	Level     int      `dynamodbav:"level" json:"level"`
	Badges    []string `dynamodbav:"badges,omitempty" json:"badges"`
	Verified  bool     `dynamodbav:"verified" json:"verified"`
	Disabled  bool     `dynamodbav:"disabled" json:"-"`

	PasswordHash string     `dynamodbav:"passwordHash,omitempty" json:"-"`
	LastLoginAt  *time.Time `dynamodbav:"lastLoginAt,omitempty" json:"last_login_at,omitempty"`
	LastLoginIP  string     `dynamodbav:"lastLoginIp,omitempty" json:"-"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

func NewUserProfile(userID, email, nickname, passwordHash string, now time.Time) *UserProfile {
	return &UserProfile{
		PK:           UserPK(userID),
		SK:           SKProfile,
		UserID:       userID,
		Email:        email,
		Nickname:     nickname,
		Tier:         TierDefault,
		Level:        1,
		PasswordHash: passwordHash,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// EmailRef reserves an email address and points it at the owning user.
// Written transactionally with the profile at signup.
type EmailRef struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	UserID    string    `dynamodbav:"userId"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}

func NewEmailRef(email, userID string, now time.Time) *EmailRef {
	return &EmailRef{PK: EmailPK(email), SK: SKIdentity, UserID: userID, CreatedAt: now}
}

// FederatedRef links an external (issuer, subject) identity to a user.
type FederatedRef struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	UserID    string    `dynamodbav:"userId"`
	Issuer    string    `dynamodbav:"issuer"`
	Subject   string    `dynamodbav:"subject"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}

func NewFederatedRef(issuer, subject, userID string, now time.Time) *FederatedRef {
	return &FederatedRef{
		PK:        FederatedPK(issuer, subject),
		SK:        SKIdentity,
		UserID:    userID,
		Issuer:    issuer,
		Subject:   subject,
		CreatedAt: now,
	}
}

// LoginAttempt records one failed password login. Rows expire via the table
// TTL on ExpiresAt 24 h after the attempt.
type LoginAttempt struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	UserID    string    `dynamodbav:"userId"`
	SourceIP  string    `dynamodbav:"sourceIp"`
	At        time.Time `dynamodbav:"at"`
	ExpiresAt int64     `dynamodbav:"expiresAt"`
}

func NewLoginAttempt(userID, sourceIP, nonce string, at time.Time) *LoginAttempt {
	return &LoginAttempt{
		PK:        UserPK(userID),
		SK:        AttemptSK(at, nonce),
		UserID:    userID,
		SourceIP:  sourceIP,
		At:        at,
		ExpiresAt: at.Add(24 * time.Hour).Unix(),
	}
}

// RefreshToken is an opaque renew handle, rotated on every use.
type RefreshToken struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	UserID    string    `dynamodbav:"userId"`
	Handle    string    `dynamodbav:"handle"`
	ExpiresAt int64     `dynamodbav:"expiresAt"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}

func NewRefreshToken(userID, handle string, now time.Time, ttl time.Duration) *RefreshToken {
	return &RefreshToken{
		PK:        UserPK(userID),
		SK:        RefreshSK(handle),
		UserID:    userID,
		Handle:    handle,
		ExpiresAt: now.Add(ttl).Unix(),
		CreatedAt: now,
	}
}

// EventLedger deduplicates gamification event application by event id.
type EventLedger struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	EventID   string    `dynamodbav:"eventId"`
	Type      string    `dynamodbav:"type"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
	ExpiresAt int64     `dynamodbav:"expiresAt"`
}

func NewEventLedger(userID, eventID, eventType string, now time.Time) *EventLedger {
	return &EventLedger{
		PK:        UserPK(userID),
		SK:        EventSK(eventID),
		EventID:   eventID,
		Type:      eventType,
		CreatedAt: now,
		ExpiresAt: now.Add(30 * 24 * time.Hour).Unix(),
	}
}
