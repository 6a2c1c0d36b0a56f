package models

import "time"

// Guild join modes.
const (
	GuildPublic   = "public"
	GuildPrivate  = "private"
	GuildApproval = "approval"
)

// ValidGuildType reports whether t is a known guild type.
func ValidGuildType(t string) bool {
	switch t {
	case GuildPublic, GuildPrivate, GuildApproval:
		return true
	}
	return false
}

// Member roles, ordered by privilege.
const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Guild is the metadata row on the guild table. GSI1 lists public guilds by
// recency; GSI2 lists guilds by creator.
type Guild struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GSI1PK string `dynamodbav:"GSI1PK" json:"-"`
	GSI1SK string `dynamodbav:"GSI1SK" json:"-"`
	GSI2PK string `dynamodbav:"GSI2PK" json:"-"`
	GSI2SK string `dynamodbav:"GSI2SK" json:"-"`

	GuildID         string `dynamodbav:"guildId" json:"id"`
	Name            string `dynamodbav:"name" json:"name"`
	Description     string `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Type            string `dynamodbav:"type" json:"type"`
	OwnerID         string `dynamodbav:"ownerId" json:"owner_id"`
	AvatarKey       string `dynamodbav:"avatarKey,omitempty" json:"avatar_key,omitempty"`
	MemberCount     int    `dynamodbav:"memberCount" json:"member_count"`
	CommentsEnabled bool   `dynamodbav:"commentsEnabled" json:"comments_enabled"`

	// RankingScore is written by the hourly aggregation job and read as-is
	// at request time.
	RankingScore float64    `dynamodbav:"rankingScore" json:"ranking_score"`
	RankedAt     *time.Time `dynamodbav:"rankedAt,omitempty" json:"ranked_at,omitempty"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

func NewGuild(guildID, name, guildType, ownerID string, now time.Time) *Guild {
	return &Guild{
		PK:              GuildPK(guildID),
		SK:              GuildMetaSK(guildID),
		GSI1PK:          GuildTypePK(guildType),
		GSI1SK:          CreatedAtSK(now),
		GSI2PK:          UserPK(ownerID),
		GSI2SK:          GuildPK(guildID),
		GuildID:         guildID,
		Name:            name,
		Type:            guildType,
		OwnerID:         ownerID,
		MemberCount:     1,
		CommentsEnabled: true,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// GuildMember is one membership row; GSI3 inverts it so a user's guilds are
// one partition query.
type GuildMember struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GSI3PK string `dynamodbav:"GSI3PK" json:"-"`
	GSI3SK string `dynamodbav:"GSI3SK" json:"-"`

	GuildID  string    `dynamodbav:"guildId" json:"guild_id"`
	UserID   string    `dynamodbav:"userId" json:"user_id"`
	Role     string    `dynamodbav:"role" json:"role"`
	JoinedAt time.Time `dynamodbav:"joinedAt" json:"joined_at"`
}

func NewGuildMember(guildID, userID, role string, now time.Time) *GuildMember {
	return &GuildMember{
		PK:       GuildPK(guildID),
		SK:       MemberSK(userID),
		GSI3PK:   UserPK(userID),
		GSI3SK:   GuildPK(guildID),
		GuildID:  guildID,
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
	}
}

// Join request statuses.
const (
	JoinPending  = "pending"
	JoinRejected = "rejected"
)

// JoinRequest queues a user for an approval guild. Approval deletes the row
// and writes the membership in one transaction; rejection keeps a marker.
type JoinRequest struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GuildID   string    `dynamodbav:"guildId" json:"guild_id"`
	UserID    string    `dynamodbav:"userId" json:"user_id"`
	Message   string    `dynamodbav:"message,omitempty" json:"message,omitempty"`
	Status    string    `dynamodbav:"status" json:"status"`
	DecidedBy string    `dynamodbav:"decidedBy,omitempty" json:"decided_by,omitempty"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewJoinRequest(guildID, userID, message string, now time.Time) *JoinRequest {
	return &JoinRequest{
		PK:        GuildPK(guildID),
		SK:        JoinRequestSK(userID),
		GuildID:   guildID,
		UserID:    userID,
		Message:   message,
		Status:    JoinPending,
		CreatedAt: now,
	}
}

// BlockedUser marks a user banned from a guild; blocked users cannot join
// or post.
type BlockedUser struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GuildID   string    `dynamodbav:"guildId" json:"guild_id"`
	UserID    string    `dynamodbav:"userId" json:"user_id"`
	BlockedBy string    `dynamodbav:"blockedBy" json:"blocked_by"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewBlockedUser(guildID, userID, blockedBy string, now time.Time) *BlockedUser {
	return &BlockedUser{
		PK:        GuildPK(guildID),
		SK:        BlockedSK(userID),
		GuildID:   guildID,
		UserID:    userID,
		BlockedBy: blockedBy,
		CreatedAt: now,
	}
}

// GuildComment threads via ParentID. GSI4 lists one thread in time order;
// GSI5 lists one user's comments across a guild.
type GuildComment struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GSI4PK string `dynamodbav:"GSI4PK" json:"-"`
	GSI4SK string `dynamodbav:"GSI4SK" json:"-"`
	GSI5PK string `dynamodbav:"GSI5PK" json:"-"`
	GSI5SK string `dynamodbav:"GSI5SK" json:"-"`

	CommentID string    `dynamodbav:"commentId" json:"id"`
	GuildID   string    `dynamodbav:"guildId" json:"guild_id"`
	AuthorID  string    `dynamodbav:"authorId" json:"author_id"`
	ParentID  string    `dynamodbav:"parentId,omitempty" json:"parent_id,omitempty"`
	Text      string    `dynamodbav:"text" json:"text"`
	Deleted   bool      `dynamodbav:"deleted" json:"-"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewGuildComment(guildID, commentID, authorID, parentID, text string, now time.Time) *GuildComment {
	return &GuildComment{
		PK:        GuildPK(guildID),
		SK:        CommentSK(commentID),
		GSI4PK:    CommentThreadPK(guildID, parentID),
		GSI4SK:    CreatedAtSK(now),
		GSI5PK:    UserPK(authorID),
		GSI5SK:    UserCommentSK(guildID, commentID),
		CommentID: commentID,
		GuildID:   guildID,
		AuthorID:  authorID,
		ParentID:  parentID,
		Text:      text,
		CreatedAt: now,
	}
}
