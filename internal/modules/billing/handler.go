package billing

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/pkg/response"
)

type Handler struct {
	svc    *Service
	apiKey gin.HandlerFunc
}

func NewHandler(svc *Service, apiKey gin.HandlerFunc) *Handler {
	if apiKey == nil {
		apiKey = func(c *gin.Context) { c.Next() }
	}
	return &Handler{svc: svc, apiKey: apiKey}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/webhooks/subscription", h.apiKey, h.webhook)
	rg.GET("/subscription", authMW, h.subscription)
}

// webhook verifies the HMAC over the raw body before anything is parsed.
func (h *Handler) webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if err := h.svc.VerifySignature(body, c.GetHeader("X-Signature")); err != nil {
		response.Error(c, err)
		return
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		response.BadRequest(c, "malformed event")
		return
	}
	if err := h.svc.HandleEvent(c.Request.Context(), ev); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"received": ev.EventID})
}

func (h *Handler) subscription(c *gin.Context) {
	view, err := h.svc.Subscription(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}
