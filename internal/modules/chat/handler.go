package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/pagination"
	"github.com/questline/core/internal/pkg/response"
	"go.uber.org/zap"
)

type Handler struct {
	svc      *Service
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(svc *Service, hub *Hub, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger.Named("Chat"),
	}
}

// RegisterRoutes mounts history under /rooms and the upgrade under /ws. The
// auth middleware reads ?token= on upgrade requests, since browsers cannot
// set headers there.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/rooms/:roomId/messages", authMW, h.history)
	rg.GET("/ws/rooms/:roomId", authMW, h.serve)
}

func (h *Handler) history(c *gin.Context) {
	page := pagination.FromContext(c)
	messages, res, err := h.svc.History(c.Request.Context(), middleware.CurrentUserID(c), c.Param("roomId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, messages, pagination.Meta(page, res))
}

func (h *Handler) serve(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := middleware.CurrentUserID(c)
	if err := h.svc.Authorize(c.Request.Context(), roomID, userID); err != nil {
		response.Error(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws, roomID, userID)
	h.hub.join(conn)
	h.logger.Info("connected",
		zap.String("room_id", roomID), zap.String("user_id", userID))

	go conn.writePump()
	conn.readPump(func(payload []byte) {
		h.handleFrame(c, conn, payload)
	})

	h.hub.leave(conn)
	conn.close()
	h.logger.Info("disconnected",
		zap.String("room_id", roomID), zap.String("user_id", userID))
}

// handleFrame parses, persists, then fans out. Oversize, bad, or throttled
// frames get an error frame back on the same connection; it stays open.
func (h *Handler) handleFrame(c *gin.Context, conn *conn, payload []byte) {
	if len(payload) > maxFrameSize {
		conn.trySend(errorPayload(kind.ValidationFailed, "frame too large"))
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		conn.trySend(errorPayload(kind.ValidationFailed, "malformed frame"))
		return
	}

	msg, err := h.svc.Post(c.Request.Context(), conn.roomID, conn.userID, frame.Text)
	if err != nil {
		conn.trySend(errorPayload(kind.Of(err), humanMessage(err)))
		return
	}

	out, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", zap.Error(err))
		return
	}
	h.hub.broadcast(conn.roomID, out)
}

func errorPayload(k kind.Kind, message string) []byte {
	b, err := json.Marshal(errorFrame{Error: string(k), Message: message})
	if err != nil {
		return []byte(`{"error":"internal"}`)
	}
	return b
}

func humanMessage(err error) string {
	var ke *kind.Error
	if errors.As(err, &ke) && ke.Message != "" {
		return ke.Message
	}
	return err.Error()
}
