package guild

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
)

// Reaction kinds accepted on guild comments.
var reactionKinds = []string{"like", "celebrate", "support", "insight"}

// CreateComment posts a guild comment. Members only, comments must be
// enabled, and the per-user hourly cap applies.
func (s *Service) CreateComment(ctx context.Context, callerID, guildID string, req CreateCommentRequest) (*models.GuildComment, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	text := validate.Text(&verr, "text", req.Text, validate.MaxCommentLen)
	parentID := ""
	if req.ParentID != "" {
		parentID = validate.UUID(&verr, "parent_id", req.ParentID)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	g, err := s.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !g.CommentsEnabled {
		return nil, kind.New(kind.PermissionDenied, "comments are disabled")
	}
	if _, err := s.roleOf(ctx, guildID, callerID); err != nil {
		return nil, err
	}
	if err := s.requireNotBlocked(ctx, guildID, callerID); err != nil {
		return nil, err
	}
	if parentID != "" {
		var parent models.GuildComment
		if err := s.st.Get(ctx, models.GuildPK(guildID), models.CommentSK(parentID), &parent); err != nil {
			return nil, err
		}
	}
	if !s.comments.Allow(callerID) {
		return nil, kind.New(kind.Throttled, "comment limit reached")
	}

	now := time.Now().UTC()
	comment := models.NewGuildComment(guildID, uuid.NewString(), callerID, parentID, text, now)
	if err := s.st.Put(ctx, comment); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.New(events.CommentPosted, callerID, comment.CommentID))
	}
	return comment, nil
}

// ListComments pages a guild's comments for members, dropping soft-deleted
// rows.
func (s *Service) ListComments(ctx context.Context, callerID, guildID string, page store.Page) ([]models.GuildComment, store.Result, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if _, err := s.roleOf(ctx, guildID, callerID); err != nil {
		return nil, store.Result{}, err
	}
	comments, res, err := store.QueryPartition[models.GuildComment](ctx, s.st, models.GuildPK(guildID), models.PrefixComment, page)
	if err != nil {
		return nil, store.Result{}, err
	}
	return dropDeleted(comments), res, nil
}

// Thread lists one comment's replies in ascending time order via GSI4.
func (s *Service) Thread(ctx context.Context, callerID, guildID, parentID string, page store.Page) ([]models.GuildComment, store.Result, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	parentID = validate.UUID(&verr, "comment_id", parentID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if _, err := s.roleOf(ctx, guildID, callerID); err != nil {
		return nil, store.Result{}, err
	}
	comments, res, err := store.QueryIndex[models.GuildComment](ctx, s.st, models.IndexCommentThread, models.CommentThreadPK(guildID, parentID), "", page)
	if err != nil {
		return nil, store.Result{}, err
	}
	return dropDeleted(comments), res, nil
}

// DeleteComment soft-deletes. The author may delete their own; moderators
// may delete any.
func (s *Service) DeleteComment(ctx context.Context, callerID, guildID, commentID string) error {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	commentID = validate.UUID(&verr, "comment_id", commentID)
	if err := verr.Err(); err != nil {
		return err
	}

	var comment models.GuildComment
	if err := s.st.Get(ctx, models.GuildPK(guildID), models.CommentSK(commentID), &comment); err != nil {
		return err
	}
	if comment.AuthorID != callerID {
		if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
			return err
		}
	}
	if comment.Deleted {
		return nil
	}
	comment.Deleted = true
	return s.st.Put(ctx, &comment)
}

// AddReaction records (user, comment, kind); repeats are a no-op.
func (s *Service) AddReaction(ctx context.Context, callerID, guildID, commentID, reaction string) (*models.Reaction, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	commentID = validate.UUID(&verr, "comment_id", commentID)
	reaction = validate.Enum(&verr, "kind", reaction, reactionKinds...)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if _, err := s.roleOf(ctx, guildID, callerID); err != nil {
		return nil, err
	}
	var comment models.GuildComment
	if err := s.st.Get(ctx, models.GuildPK(guildID), models.CommentSK(commentID), &comment); err != nil {
		return nil, err
	}
	if comment.Deleted {
		return nil, kind.New(kind.NotFound, "comment not found")
	}

	r := models.NewReaction(models.GuildPK(guildID), commentID, callerID, reaction, time.Now().UTC())
	if err := s.st.PutIfAbsent(ctx, r); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return r, nil
		}
		return nil, err
	}
	return r, nil
}

// RemoveReaction deletes the caller's (comment, kind) reaction.
func (s *Service) RemoveReaction(ctx context.Context, callerID, guildID, commentID, reaction string) error {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	commentID = validate.UUID(&verr, "comment_id", commentID)
	reaction = validate.Enum(&verr, "kind", reaction, reactionKinds...)
	if err := verr.Err(); err != nil {
		return err
	}
	return s.st.Delete(ctx, models.GuildPK(guildID), models.ReactionSK(commentID, callerID, reaction))
}

func dropDeleted(comments []models.GuildComment) []models.GuildComment {
	visible := comments[:0]
	for _, c := range comments {
		if !c.Deleted {
			visible = append(visible, c)
		}
	}
	return visible
}
