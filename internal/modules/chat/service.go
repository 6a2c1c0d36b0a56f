package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/ratelimit"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

// Membership answers whether a user belongs to a guild; guild rooms admit
// members only.
type Membership interface {
	IsMember(ctx context.Context, guildID, userID string) (bool, error)
}

type Service struct {
	st      *store.Store
	hub     *Hub
	members Membership
	window  *ratelimit.Window
	logger  *zap.Logger
}

func NewService(st *store.Store, hub *Hub, members Membership, messagesPerMinute int, logger *zap.Logger) *Service {
	if messagesPerMinute <= 0 {
		messagesPerMinute = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		st:      st,
		hub:     hub,
		members: members,
		window:  ratelimit.NewWindow(messagesPerMinute, time.Minute),
		logger:  logger.Named("Chat"),
	}
}

// Windows exposes the sliding window for the cron sweep.
func (s *Service) Windows() []*ratelimit.Window {
	return []*ratelimit.Window{s.window}
}

// Authorize gates room entry. Ad-hoc rooms are open to any authenticated
// user; GUILD# rooms require membership.
func (s *Service) Authorize(ctx context.Context, roomID, userID string) error {
	if roomID == "" {
		return kind.New(kind.ValidationFailed, "room id is required")
	}
	guildID, ok := models.GuildRoomID(roomID)
	if !ok {
		return nil
	}
	member, err := s.members.IsMember(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if !member {
		return kind.New(kind.PermissionDenied, "not a guild member")
	}
	return nil
}

// Post persists one message and returns the stored record. The counter is
// taken under the room lock before the write, so (sentAt, counter) orders
// the room.
func (s *Service) Post(ctx context.Context, roomID, userID, text string) (*models.ChatMessage, error) {
	var verr validate.Errors
	text = validate.Text(&verr, "text", text, validate.MaxCommentLen)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if !s.window.Allow(userID) {
		return nil, kind.New(kind.Throttled, "message limit reached")
	}

	now := time.Now().UTC()
	counter := s.hub.nextCounter(roomID)
	msg := models.NewChatMessage(roomID, uuid.NewString(), userID, text, counter, now)
	if err := s.st.Put(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History pages a room's messages newest first.
func (s *Service) History(ctx context.Context, callerID, roomID string, page store.Page) ([]models.ChatMessage, store.Result, error) {
	if err := s.Authorize(ctx, roomID, callerID); err != nil {
		return nil, store.Result{}, err
	}
	page.Descending = true
	return store.QueryPartition[models.ChatMessage](ctx, s.st, models.RoomPK(roomID), models.PrefixMessage, page)
}
