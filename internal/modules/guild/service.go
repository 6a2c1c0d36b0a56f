package guild

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/config"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/ratelimit"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

// Service runs the guild surface. Guild rows live on the guild table;
// member quest/goal lookups for rankings go through the core table.
type Service struct {
	st       *store.Store // guild table
	core     *store.Store // core table
	bus      *events.Bus
	comments *ratelimit.Window
	avatars  avatarClient
	avatar   config.AvatarConfig
	logger   *zap.Logger
}

func NewService(st, core *store.Store, bus *events.Bus, avatars avatarClient, avatarCfg config.AvatarConfig, commentsPerHour int, logger *zap.Logger) *Service {
	if commentsPerHour <= 0 {
		commentsPerHour = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		st:       st,
		core:     core,
		bus:      bus,
		comments: ratelimit.NewWindow(commentsPerHour, time.Hour),
		avatars:  avatars,
		avatar:   avatarCfg,
		logger:   logger.Named("Guild"),
	}
}

// Windows exposes the sliding windows for the cron sweep.
func (s *Service) Windows() []*ratelimit.Window {
	return []*ratelimit.Window{s.comments}
}

// CreateGuild writes the metadata row and the owner's membership together.
func (s *Service) CreateGuild(ctx context.Context, ownerID string, req CreateGuildRequest) (*models.Guild, error) {
	var verr validate.Errors
	name := validate.Text(&verr, "name", req.Name, validate.MaxTitleLen)
	description := validate.OptionalText(&verr, "description", req.Description, validate.MaxDescriptionLen)
	guildType := req.Type
	if guildType == "" {
		guildType = models.GuildPublic
	}
	guildType = validate.Enum(&verr, "type", guildType,
		models.GuildPublic, models.GuildPrivate, models.GuildApproval)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g := models.NewGuild(uuid.NewString(), name, guildType, ownerID, now)
	g.Description = description
	err := s.st.Txn().
		PutIfAbsent(g).
		PutIfAbsent(models.NewGuildMember(g.GuildID, ownerID, models.RoleOwner, now)).
		Run(ctx)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListPublic pages public guilds by recency via GSI1.
func (s *Service) ListPublic(ctx context.Context, page store.Page) ([]models.Guild, store.Result, error) {
	page.Descending = true
	return store.QueryIndex[models.Guild](ctx, s.st, models.IndexGuildTypeCreatedAt, models.GuildTypePK(models.GuildPublic), "", page)
}

// ListMine pages the guilds the caller belongs to via GSI3.
func (s *Service) ListMine(ctx context.Context, userID string, page store.Page) ([]models.Guild, store.Result, error) {
	memberships, res, err := store.QueryIndex[models.GuildMember](ctx, s.st, models.IndexUserMembership, models.UserPK(userID), "", page)
	if err != nil {
		return nil, store.Result{}, err
	}
	guilds := make([]models.Guild, 0, len(memberships))
	for _, m := range memberships {
		var g models.Guild
		if err := s.st.Get(ctx, models.GuildPK(m.GuildID), models.GuildMetaSK(m.GuildID), &g); err != nil {
			if kind.Is(err, kind.NotFound) {
				continue
			}
			return nil, store.Result{}, err
		}
		guilds = append(guilds, g)
	}
	return guilds, res, nil
}

func (s *Service) GetGuild(ctx context.Context, guildID string) (*models.Guild, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	var g models.Guild
	if err := s.st.Get(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) UpdateGuild(ctx context.Context, callerID, guildID string, req UpdateGuildRequest) (*models.Guild, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	var name, description string
	if req.Name != nil {
		name = validate.Text(&verr, "name", *req.Name, validate.MaxTitleLen)
	}
	if req.Description != nil {
		description = validate.OptionalText(&verr, "description", *req.Description, validate.MaxDescriptionLen)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleOwner); err != nil {
		return nil, err
	}

	var updated *models.Guild
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var g models.Guild
		if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
			return err
		}
		if req.Name != nil {
			g.Name = name
		}
		if req.Description != nil {
			g.Description = description
		}
		g.UpdatedAt = time.Now().UTC()
		if err := s.st.UpdateWithVersion(ctx, &g, g.Version); err != nil {
			return err
		}
		g.Version++
		updated = &g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteGuild removes the guild and its whole partition. Owner only.
func (s *Service) DeleteGuild(ctx context.Context, callerID, guildID string) error {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	if err := verr.Err(); err != nil {
		return err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleOwner); err != nil {
		return err
	}
	return s.st.DeleteCascadeGuild(ctx, guildID)
}

// Join adds the caller to a public guild. Private guilds never admit this
// way; approval guilds go through the join-request queue.
func (s *Service) Join(ctx context.Context, userID, guildID string) (*models.GuildMember, error) {
	g, err := s.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if err := s.requireNotBlocked(ctx, guildID, userID); err != nil {
		return nil, err
	}
	switch g.Type {
	case models.GuildPublic:
	case models.GuildApproval:
		return nil, kind.New(kind.PermissionDenied, "guild requires a join request")
	default:
		return nil, kind.New(kind.PermissionDenied, "guild is invite only")
	}

	now := time.Now().UTC()
	member := models.NewGuildMember(guildID, userID, models.RoleMember, now)
	if err := s.st.PutIfAbsent(ctx, member); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, kind.New(kind.ConflictState, "already a member")
		}
		return nil, err
	}
	s.adjustMemberCount(ctx, guildID, 1)
	return member, nil
}

// Leave removes the caller's membership. The owner must transfer ownership
// first.
func (s *Service) Leave(ctx context.Context, userID, guildID string) error {
	role, err := s.roleOf(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if role == models.RoleOwner {
		return kind.New(kind.ConflictState, "owner must transfer ownership before leaving")
	}
	if err := s.st.Delete(ctx, models.GuildPK(guildID), models.MemberSK(userID)); err != nil {
		return err
	}
	s.adjustMemberCount(ctx, guildID, -1)
	return nil
}

// ListMembers is member-visible.
func (s *Service) ListMembers(ctx context.Context, callerID, guildID string, page store.Page) ([]models.GuildMember, store.Result, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if _, err := s.roleOf(ctx, guildID, callerID); err != nil {
		return nil, store.Result{}, err
	}
	return store.QueryPartition[models.GuildMember](ctx, s.st, models.GuildPK(guildID), models.PrefixMember, page)
}

// IsMember reports membership without leaking why a lookup failed; chat
// uses it to gate guild rooms.
func (s *Service) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	_, err := s.roleOf(ctx, guildID, userID)
	if err == nil {
		return true, nil
	}
	if kind.Is(err, kind.PermissionDenied) {
		return false, nil
	}
	return false, err
}

// CreateJoinRequest queues the caller for an approval guild.
func (s *Service) CreateJoinRequest(ctx context.Context, userID, guildID string, req JoinRequestCreate) (*models.JoinRequest, error) {
	var verr validate.Errors
	message := validate.OptionalText(&verr, "message", req.Message, validate.MaxCommentLen)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	g, err := s.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if g.Type != models.GuildApproval {
		return nil, kind.New(kind.ConflictState, "guild does not take join requests")
	}
	if err := s.requireNotBlocked(ctx, guildID, userID); err != nil {
		return nil, err
	}
	if _, err := s.roleOf(ctx, guildID, userID); err == nil {
		return nil, kind.New(kind.ConflictState, "already a member")
	} else if !kind.Is(err, kind.PermissionDenied) {
		return nil, err
	}

	jr := models.NewJoinRequest(guildID, userID, message, time.Now().UTC())
	if err := s.st.PutIfAbsent(ctx, jr); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, kind.New(kind.ConflictState, "join request already filed")
		}
		return nil, err
	}
	return jr, nil
}

// ListJoinRequests is restricted to the owner and moderators.
func (s *Service) ListJoinRequests(ctx context.Context, callerID, guildID string, page store.Page) ([]models.JoinRequest, store.Result, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	if err := verr.Err(); err != nil {
		return nil, store.Result{}, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, store.Result{}, err
	}
	return store.QueryPartition[models.JoinRequest](ctx, s.st, models.GuildPK(guildID), models.PrefixJoinRequest, page)
}

// ApproveJoinRequest removes the queue row and writes the membership in one
// transaction, then bumps the member count.
func (s *Service) ApproveJoinRequest(ctx context.Context, callerID, guildID, userID string) (*models.GuildMember, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	userID = validate.UUID(&verr, "user_id", userID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, err
	}

	var jr models.JoinRequest
	if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.JoinRequestSK(userID), &jr); err != nil {
		return nil, err
	}
	if jr.Status != models.JoinPending {
		return nil, kind.Newf(kind.ConflictState, "join request already %s", jr.Status)
	}

	now := time.Now().UTC()
	member := models.NewGuildMember(guildID, userID, models.RoleMember, now)
	err := s.st.Txn().
		DeleteIfExists(models.GuildPK(guildID), models.JoinRequestSK(userID)).
		PutIfAbsent(member).
		Run(ctx)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, kind.New(kind.ConflictState, "request already decided")
		}
		return nil, err
	}
	s.adjustMemberCount(ctx, guildID, 1)
	return member, nil
}

// RejectJoinRequest keeps a rejection marker in the queue.
func (s *Service) RejectJoinRequest(ctx context.Context, callerID, guildID, userID string) (*models.JoinRequest, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	userID = validate.UUID(&verr, "user_id", userID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, err
	}

	var jr models.JoinRequest
	if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.JoinRequestSK(userID), &jr); err != nil {
		return nil, err
	}
	if jr.Status != models.JoinPending {
		return nil, kind.Newf(kind.ConflictState, "join request already %s", jr.Status)
	}
	jr.Status = models.JoinRejected
	jr.DecidedBy = callerID
	if err := s.st.Put(ctx, &jr); err != nil {
		return nil, err
	}
	return &jr, nil
}

// ToggleComments flips whether members may post comments.
func (s *Service) ToggleComments(ctx context.Context, callerID, guildID string, enabled bool) (*models.Guild, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, err
	}

	var updated *models.Guild
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var g models.Guild
		if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
			return err
		}
		g.CommentsEnabled = enabled
		g.UpdatedAt = time.Now().UTC()
		if err := s.st.UpdateWithVersion(ctx, &g, g.Version); err != nil {
			return err
		}
		g.Version++
		updated = &g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// adjustMemberCount maintains the denormalized count on the guild row. Best
// effort; rankings recompute from member rows anyway.
func (s *Service) adjustMemberCount(ctx context.Context, guildID string, delta int) {
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var g models.Guild
		if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
			return err
		}
		g.MemberCount += delta
		if g.MemberCount < 0 {
			g.MemberCount = 0
		}
		return s.st.UpdateWithVersion(ctx, &g, g.Version)
	})
	if err != nil {
		s.logger.Warn("member count update failed",
			zap.String("guild_id", guildID), zap.Error(err))
	}
}
