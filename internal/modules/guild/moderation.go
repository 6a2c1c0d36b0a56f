package guild

import (
	"context"
	"errors"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

// roleOf returns the caller's role, or permission.denied for non-members.
func (s *Service) roleOf(ctx context.Context, guildID, userID string) (string, error) {
	var member models.GuildMember
	err := s.st.Get(ctx, models.GuildPK(guildID), models.MemberSK(userID), &member)
	if err != nil {
		if kind.Is(err, kind.NotFound) {
			return "", kind.New(kind.PermissionDenied, "not a guild member")
		}
		return "", err
	}
	return member.Role, nil
}

// requireRole enforces the moderation matrix: moderators hold every power
// except ownership transfer, which stays with the owner.
func (s *Service) requireRole(ctx context.Context, guildID, userID, minimum string) error {
	role, err := s.roleOf(ctx, guildID, userID)
	if err != nil {
		return err
	}
	switch minimum {
	case models.RoleOwner:
		if role != models.RoleOwner {
			return kind.New(kind.PermissionDenied, "owner only")
		}
	case models.RoleModerator:
		if role != models.RoleOwner && role != models.RoleModerator {
			return kind.New(kind.PermissionDenied, "moderators only")
		}
	}
	return nil
}

func (s *Service) requireNotBlocked(ctx context.Context, guildID, userID string) error {
	var blocked models.BlockedUser
	err := s.st.Get(ctx, models.GuildPK(guildID), models.BlockedSK(userID), &blocked)
	if err == nil {
		return kind.New(kind.PermissionDenied, "blocked from this guild")
	}
	if kind.Is(err, kind.NotFound) {
		return nil
	}
	return err
}

// RemoveMember ejects a member. Moderators cannot remove the owner or each
// other; the owner can remove anyone but themselves.
func (s *Service) RemoveMember(ctx context.Context, callerID, guildID, userID string) error {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	userID = validate.UUID(&verr, "user_id", userID)
	if err := verr.Err(); err != nil {
		return err
	}
	if userID == callerID {
		return kind.New(kind.ConflictState, "use leave to remove yourself")
	}
	callerRole, err := s.roleOf(ctx, guildID, callerID)
	if err != nil {
		return err
	}
	targetRole, err := s.roleOf(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if err := s.checkModerationTarget(callerRole, targetRole); err != nil {
		return err
	}

	if err := s.st.Delete(ctx, models.GuildPK(guildID), models.MemberSK(userID)); err != nil {
		return err
	}
	s.adjustMemberCount(ctx, guildID, -1)
	return nil
}

// Block bans a user: membership is removed, a blocked marker written, and
// the user's guild comments soft-deleted.
func (s *Service) Block(ctx context.Context, callerID, guildID, userID string) error {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	userID = validate.UUID(&verr, "user_id", userID)
	if err := verr.Err(); err != nil {
		return err
	}
	if userID == callerID {
		return kind.New(kind.ConflictState, "cannot block yourself")
	}
	callerRole, err := s.roleOf(ctx, guildID, callerID)
	if err != nil {
		return err
	}
	targetRole, err := s.roleOf(ctx, guildID, userID)
	wasMember := err == nil
	if err != nil && !kind.Is(err, kind.PermissionDenied) {
		return err
	}
	if wasMember {
		if err := s.checkModerationTarget(callerRole, targetRole); err != nil {
			return err
		}
	} else if callerRole != models.RoleOwner && callerRole != models.RoleModerator {
		return kind.New(kind.PermissionDenied, "moderators only")
	}

	now := time.Now().UTC()
	txn := s.st.Txn().Put(models.NewBlockedUser(guildID, userID, callerID, now))
	if wasMember {
		txn.Delete(models.GuildPK(guildID), models.MemberSK(userID))
	}
	if err := txn.Run(ctx); err != nil {
		return err
	}
	if wasMember {
		s.adjustMemberCount(ctx, guildID, -1)
	}
	s.softDeleteUserComments(ctx, guildID, userID)
	return nil
}

// Unblock lifts a ban; the user may join again.
func (s *Service) Unblock(ctx context.Context, callerID, guildID, userID string) error {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	userID = validate.UUID(&verr, "user_id", userID)
	if err := verr.Err(); err != nil {
		return err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return err
	}
	return s.st.Delete(ctx, models.GuildPK(guildID), models.BlockedSK(userID))
}

// AssignModerator promotes a member.
func (s *Service) AssignModerator(ctx context.Context, callerID, guildID, userID string) (*models.GuildMember, error) {
	return s.setRole(ctx, callerID, guildID, userID, models.RoleModerator)
}

// RemoveModerator demotes a moderator back to member.
func (s *Service) RemoveModerator(ctx context.Context, callerID, guildID, userID string) (*models.GuildMember, error) {
	return s.setRole(ctx, callerID, guildID, userID, models.RoleMember)
}

func (s *Service) setRole(ctx context.Context, callerID, guildID, userID, role string) (*models.GuildMember, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	userID = validate.UUID(&verr, "user_id", userID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, err
	}

	var member models.GuildMember
	if err := s.st.Get(ctx, models.GuildPK(guildID), models.MemberSK(userID), &member); err != nil {
		return nil, err
	}
	if member.Role == models.RoleOwner {
		return nil, kind.New(kind.ConflictState, "the owner's role is fixed")
	}
	member.Role = role
	if err := s.st.Put(ctx, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// TransferOwnership atomically swaps the owner and a member: the guild row,
// the old owner's row, and the new owner's row move in one transaction
// against the re-read version.
func (s *Service) TransferOwnership(ctx context.Context, callerID, guildID, newOwnerID string) (*models.Guild, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	newOwnerID = validate.UUID(&verr, "new_owner_id", newOwnerID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if newOwnerID == callerID {
		return nil, kind.New(kind.ConflictState, "already the owner")
	}

	var g models.Guild
	if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
		return nil, err
	}
	if g.OwnerID != callerID {
		return nil, kind.New(kind.PermissionDenied, "owner only")
	}

	var newOwner models.GuildMember
	if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.MemberSK(newOwnerID), &newOwner); err != nil {
		if kind.Is(err, kind.NotFound) {
			return nil, kind.New(kind.ConflictState, "new owner must be a member")
		}
		return nil, err
	}

	var oldOwner models.GuildMember
	if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.MemberSK(callerID), &oldOwner); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g.OwnerID = newOwnerID
	g.GSI2PK = models.UserPK(newOwnerID)
	g.UpdatedAt = now

	// Demotion keeps the original join date.
	oldOwner.Role = models.RoleMember
	newOwnerRow := newOwner
	newOwnerRow.Role = models.RoleOwner

	err := s.st.Txn().
		PutIfVersion(&g, g.Version).
		Put(&oldOwner).
		Put(&newOwnerRow).
		Run(ctx)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, store.ErrVersionConflict
		}
		return nil, err
	}
	g.Version++
	return &g, nil
}

// checkModerationTarget encodes who may act on whom.
func (s *Service) checkModerationTarget(callerRole, targetRole string) error {
	switch callerRole {
	case models.RoleOwner:
		if targetRole == models.RoleOwner {
			return kind.New(kind.ConflictState, "transfer ownership first")
		}
		return nil
	case models.RoleModerator:
		if targetRole != models.RoleMember {
			return kind.New(kind.PermissionDenied, "moderators may act on members only")
		}
		return nil
	}
	return kind.New(kind.PermissionDenied, "moderators only")
}

// softDeleteUserComments hides a blocked user's comments via GSI5. Best
// effort; comment listing also drops deleted rows.
func (s *Service) softDeleteUserComments(ctx context.Context, guildID, userID string) {
	prefix := models.UserCommentSKPrefix(guildID)
	page := store.Page{Limit: store.MaxLimit}
	for {
		comments, res, err := store.QueryIndex[models.GuildComment](ctx, s.st, models.IndexUserComments, models.UserPK(userID), prefix, page)
		if err != nil {
			s.logger.Warn("comment sweep failed", zap.String("guild_id", guildID), zap.Error(err))
			return
		}
		for i := range comments {
			comments[i].Deleted = true
			if err := s.st.Put(ctx, &comments[i]); err != nil {
				s.logger.Warn("comment soft delete failed",
					zap.String("comment_id", comments[i].CommentID), zap.Error(err))
			}
		}
		if !res.HasMore {
			return
		}
		page.Cursor = res.Cursor
	}
}
