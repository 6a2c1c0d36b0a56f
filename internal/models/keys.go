package models

import (
	"fmt"
	"strings"
	"time"
)

// Key prefixes are literal and stable; changing any of them is a data
// migration.
const (
	PrefixUser        = "USER#"
	PrefixGoal        = "GOAL#"
	PrefixTask        = "#TASK#"
	PrefixQuest       = "QUEST#"
	PrefixTemplate    = "TEMPLATE#"
	PrefixGuild       = "GUILD#"
	PrefixRoom        = "ROOM#"
	PrefixMessage     = "MSG#"
	PrefixInvite      = "INVITE#"
	PrefixAttempt     = "ATTEMPT#"
	PrefixReaction    = "REACT#"
	PrefixComment     = "COMMENT#"
	PrefixRefresh     = "REFRESH#"
	PrefixEvent       = "EVENT#"
	PrefixSubEvent    = "SUBEVT#"
	PrefixMember      = "MEMBER#"
	PrefixJoinRequest = "JOIN_REQUEST#"
	PrefixBlocked     = "BLOCKED#"
	PrefixCollab      = "COLLABORATOR#"
	PrefixCreatedAt   = "CREATED_AT#"

	SKProfile  = "PROFILE"
	SKIdentity = "IDENTITY"
)

// Physical GSI names. The semantic index layouts live on the item structs as
// GSInPK/GSInSK attributes; sparse by design.
const (
	IndexGuildTypeCreatedAt = "GuildTypeCreatedAt" // GSI1
	IndexCreatedBy          = "CreatedBy"          // GSI2
	IndexUserMembership     = "UserMembership"     // GSI3
	IndexCommentThread      = "CommentThread"      // GSI4
	IndexUserComments       = "UserComments"       // GSI5
)

// IndexKeyAttrs maps a physical index name to its (partition, sort)
// attribute names on the item.
func IndexKeyAttrs(index string) (string, string, bool) {
	switch index {
	case IndexGuildTypeCreatedAt:
		return "GSI1PK", "GSI1SK", true
	case IndexCreatedBy:
		return "GSI2PK", "GSI2SK", true
	case IndexUserMembership:
		return "GSI3PK", "GSI3SK", true
	case IndexCommentThread:
		return "GSI4PK", "GSI4SK", true
	case IndexUserComments:
		return "GSI5PK", "GSI5SK", true
	}
	return "", "", false
}

// sortableTimeLayout keeps a fixed-width fraction so lexicographic order on
// encoded keys equals chronological order. RFC3339Nano trims zeros and would
// not sort.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatSortableTime renders t for use inside sort keys.
func FormatSortableTime(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}

func UserPK(userID string) string  { return PrefixUser + userID }
func GoalPK(goalID string) string  { return PrefixGoal + goalID }
func GuildPK(guildID string) string { return PrefixGuild + guildID }

func GoalSK(goalID string) string { return PrefixGoal + goalID }

func TaskSK(goalID, taskID string) string {
	return PrefixGoal + goalID + PrefixTask + taskID
}

// TaskSKPrefix covers every task under a goal but not the goal row itself.
func TaskSKPrefix(goalID string) string { return PrefixGoal + goalID + PrefixTask }

func QuestSK(questID string) string       { return PrefixQuest + questID }
func TemplateSK(templateID string) string { return PrefixTemplate + templateID }

func AttemptSK(at time.Time, nonce string) string {
	return PrefixAttempt + FormatSortableTime(at) + "#" + nonce
}

// AttemptSKWindow bounds an ATTEMPT# range query to [from, to].
func AttemptSKWindow(from, to time.Time) (string, string) {
	return PrefixAttempt + FormatSortableTime(from), PrefixAttempt + FormatSortableTime(to) + "#￿"
}

func RefreshSK(handle string) string { return PrefixRefresh + handle }

func GuildMetaSK(guildID string) string  { return "METADATA#" + guildID }
func MemberSK(userID string) string      { return PrefixMember + userID }
func JoinRequestSK(userID string) string { return PrefixJoinRequest + userID }
func BlockedSK(userID string) string     { return PrefixBlocked + userID }
func CommentSK(commentID string) string  { return PrefixComment + commentID }

func InviteSK(inviteeID string) string     { return PrefixInvite + inviteeID }
func InviteInboxSK(goalID string) string   { return PrefixInvite + goalID }
func CollaboratorSK(userID string) string  { return PrefixCollab + userID }

// ReactionSK includes the target id so reactions to different comments can
// share a partition; uniqueness per (user, target, kind) falls out of the key.
func ReactionSK(targetID, userID, reaction string) string {
	return PrefixReaction + targetID + "#" + userID + "#" + reaction
}

func ReactionSKPrefix(targetID string) string {
	return PrefixReaction + targetID + "#"
}

// RoomPK builds the chat partition. roomID is either "ROOM-<uuid>" for ad-hoc
// rooms or "GUILD#<guildId>" for guild rooms.
func RoomPK(roomID string) string { return PrefixRoom + roomID }

// GuildRoomID reports whether roomID addresses a guild room and extracts the
// guild id.
func GuildRoomID(roomID string) (string, bool) {
	if strings.HasPrefix(roomID, PrefixGuild) {
		return strings.TrimPrefix(roomID, PrefixGuild), true
	}
	return "", false
}

// MessageSK orders messages by server receive time with a per-room counter
// tiebreaker. Both numbers are zero-padded so string order is total order.
func MessageSK(ts time.Time, counter int64, messageID string) string {
	short := messageID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s%020d#%06d#%s", PrefixMessage, ts.UnixMicro(), counter, short)
}

func EmailPK(email string) string { return "EMAIL#" + strings.ToLower(strings.TrimSpace(email)) }

func FederatedPK(issuer, subject string) string {
	return "FEDERATED#" + issuer + "#" + subject
}

func EventSK(eventID string) string    { return PrefixEvent + eventID }
func SubEventSK(eventID string) string { return PrefixSubEvent + eventID }

func GuildTypePK(guildType string) string { return PrefixGuild + guildType }
func CreatedAtSK(t time.Time) string      { return PrefixCreatedAt + FormatSortableTime(t) }

func CommentThreadPK(guildID, parentID string) string {
	if parentID == "" {
		parentID = "ROOT"
	}
	return PrefixGuild + guildID + "#COMMENT_THREAD#" + parentID
}

func UserCommentSK(guildID, commentID string) string {
	return "COMMENT_IN_GUILD#" + guildID + "#" + commentID
}

func UserCommentSKPrefix(guildID string) string {
	return "COMMENT_IN_GUILD#" + guildID + "#"
}
