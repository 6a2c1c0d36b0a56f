package collab

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/ratelimit"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

// Reaction kinds accepted on goal comments.
var reactionKinds = []string{"like", "celebrate", "support", "insight"}

type Service struct {
	st       *store.Store
	bus      *events.Bus
	invites  *ratelimit.Window
	comments *ratelimit.Window
	logger   *zap.Logger
}

// NewService builds the collaboration service. invitesPerHour and
// commentsPerHour are the hard per-user caps, separate from edge throttling.
func NewService(st *store.Store, bus *events.Bus, invitesPerHour, commentsPerHour int, logger *zap.Logger) *Service {
	if invitesPerHour <= 0 {
		invitesPerHour = 20
	}
	if commentsPerHour <= 0 {
		commentsPerHour = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		st:       st,
		bus:      bus,
		invites:  ratelimit.NewWindow(invitesPerHour, time.Hour),
		comments: ratelimit.NewWindow(commentsPerHour, time.Hour),
		logger:   logger.Named("Collab"),
	}
}

// Windows exposes the sliding windows for the cron sweep.
func (s *Service) Windows() []*ratelimit.Window {
	return []*ratelimit.Window{s.invites, s.comments}
}

// CreateInvite writes the goal-side row and the invitee's inbox mirror in
// one transaction.
func (s *Service) CreateInvite(ctx context.Context, ownerID, goalID, inviteeID string) (*models.Invite, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	inviteeID = validate.UUID(&verr, "invitee_id", inviteeID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if inviteeID == ownerID {
		return nil, kind.New(kind.ValidationFailed, "cannot invite yourself").
			WithFields(map[string]string{"invitee_id": "must be another user"})
	}

	var g models.Goal
	if err := s.st.Get(ctx, models.UserPK(ownerID), models.GoalSK(goalID), &g); err != nil {
		return nil, err
	}
	if err := s.st.Get(ctx, models.UserPK(inviteeID), models.SKProfile, &models.UserProfile{}); err != nil {
		return nil, err
	}

	if !s.invites.Allow(ownerID) {
		return nil, kind.New(kind.Throttled, "invite limit reached")
	}

	now := time.Now().UTC()
	invite := models.NewInvite(goalID, ownerID, inviteeID, now)
	err := s.st.Txn().
		PutIfAbsent(invite).
		PutIfAbsent(invite.InboxRow()).
		Run(ctx)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, kind.New(kind.ConflictState, "invite already exists")
		}
		return nil, err
	}
	return invite, nil
}

// ListInbox pages the caller's received invites.
func (s *Service) ListInbox(ctx context.Context, userID string, page store.Page) ([]models.Invite, store.Result, error) {
	return store.QueryPartition[models.Invite](ctx, s.st, models.UserPK(userID), models.PrefixInvite, page)
}

// ListGoalInvites pages the invites sent for one of the caller's goals.
func (s *Service) ListGoalInvites(ctx context.Context, ownerID, goalID string, page store.Page) ([]models.Invite, store.Result, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if err := s.st.Get(ctx, models.UserPK(ownerID), models.GoalSK(goalID), &models.Goal{}); err != nil {
		return nil, store.Result{}, err
	}
	return store.QueryPartition[models.Invite](ctx, s.st, models.GoalPK(goalID), models.PrefixInvite, page)
}

// Accept flips both invite mirrors and inserts the collaborator row in one
// transaction.
func (s *Service) Accept(ctx context.Context, inviteeID, goalID string) (*models.Invite, error) {
	return s.respond(ctx, inviteeID, goalID, models.InviteAccepted)
}

// Decline flips both invite mirrors to declined.
func (s *Service) Decline(ctx context.Context, inviteeID, goalID string) (*models.Invite, error) {
	return s.respond(ctx, inviteeID, goalID, models.InviteDeclined)
}

func (s *Service) respond(ctx context.Context, inviteeID, goalID, status string) (*models.Invite, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var invite models.Invite
	if err := s.st.GetConsistent(ctx, models.UserPK(inviteeID), models.InviteInboxSK(goalID), &invite); err != nil {
		return nil, err
	}
	if invite.Status != models.InvitePending {
		return nil, kind.Newf(kind.ConflictState, "invite already %s", invite.Status)
	}

	now := time.Now().UTC()
	invite.Status = status
	invite.UpdatedAt = now

	goalSide := invite
	goalSide.PK = models.GoalPK(goalID)
	goalSide.SK = models.InviteSK(inviteeID)

	inboxSide := invite
	inboxSide.PK = models.UserPK(inviteeID)
	inboxSide.SK = models.InviteInboxSK(goalID)

	txn := s.st.Txn().Put(&goalSide).Put(&inboxSide)
	if status == models.InviteAccepted {
		txn.PutIfAbsent(models.NewCollaborator(goalID, inviteeID, now))
	}
	if err := txn.Run(ctx); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, kind.New(kind.ConflictState, "already a collaborator")
		}
		return nil, err
	}
	return &invite, nil
}

// ListCollaborators is visible to the goal owner and accepted collaborators.
func (s *Service) ListCollaborators(ctx context.Context, callerID, goalID string, page store.Page) ([]models.Collaborator, store.Result, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if err := s.authorize(ctx, callerID, goalID); err != nil {
		return nil, store.Result{}, err
	}
	return store.QueryPartition[models.Collaborator](ctx, s.st, models.GoalPK(goalID), models.PrefixCollab, page)
}

// CreateComment posts on a goal; owner and accepted collaborators only.
func (s *Service) CreateComment(ctx context.Context, callerID, goalID string, req CreateCommentRequest) (*models.GoalComment, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	text := validate.Text(&verr, "text", req.Text, validate.MaxCommentLen)
	parentID := ""
	if req.ParentID != "" {
		parentID = validate.UUID(&verr, "parent_id", req.ParentID)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, goalID); err != nil {
		return nil, err
	}
	if !s.comments.Allow(callerID) {
		return nil, kind.New(kind.Throttled, "comment limit reached")
	}

	now := time.Now().UTC()
	comment := models.NewGoalComment(goalID, uuid.NewString(), callerID, parentID, text, now)
	if err := s.st.Put(ctx, comment); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.New(events.CommentPosted, callerID, comment.CommentID))
	}
	return comment, nil
}

// ListComments pages a goal's comments; same visibility as the goal.
func (s *Service) ListComments(ctx context.Context, callerID, goalID string, page store.Page) ([]models.GoalComment, store.Result, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if err := s.authorize(ctx, callerID, goalID); err != nil {
		return nil, store.Result{}, err
	}
	return store.QueryPartition[models.GoalComment](ctx, s.st, models.GoalPK(goalID), models.PrefixComment, page)
}

// AddReaction records (user, comment, kind); repeats are a no-op.
func (s *Service) AddReaction(ctx context.Context, callerID, goalID, commentID, reaction string) (*models.Reaction, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	commentID = validate.UUID(&verr, "comment_id", commentID)
	reaction = validate.Enum(&verr, "kind", reaction, reactionKinds...)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, goalID); err != nil {
		return nil, err
	}
	if err := s.st.Get(ctx, models.GoalPK(goalID), models.CommentSK(commentID), &models.GoalComment{}); err != nil {
		return nil, err
	}

	r := models.NewReaction(models.GoalPK(goalID), commentID, callerID, reaction, time.Now().UTC())
	if err := s.st.PutIfAbsent(ctx, r); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return r, nil
		}
		return nil, err
	}
	return r, nil
}

// RemoveReaction deletes the caller's (comment, kind) reaction.
func (s *Service) RemoveReaction(ctx context.Context, callerID, goalID, commentID, reaction string) error {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	commentID = validate.UUID(&verr, "comment_id", commentID)
	reaction = validate.Enum(&verr, "kind", reaction, reactionKinds...)
	if err := verr.Err(); err != nil {
		return err
	}
	return s.st.Delete(ctx, models.GoalPK(goalID), models.ReactionSK(commentID, callerID, reaction))
}

// authorize grants access to the goal owner and accepted collaborators.
func (s *Service) authorize(ctx context.Context, callerID, goalID string) error {
	var g models.Goal
	err := s.st.Get(ctx, models.UserPK(callerID), models.GoalSK(goalID), &g)
	if err == nil {
		return nil
	}
	if !kind.Is(err, kind.NotFound) {
		return err
	}
	var collab models.Collaborator
	err = s.st.Get(ctx, models.GoalPK(goalID), models.CollaboratorSK(callerID), &collab)
	if err == nil {
		return nil
	}
	if kind.Is(err, kind.NotFound) {
		return kind.New(kind.PermissionDenied, "not a collaborator on this goal")
	}
	return err
}
