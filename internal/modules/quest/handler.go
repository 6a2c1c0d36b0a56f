package quest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/pagination"
	"github.com/questline/core/internal/pkg/response"
)

type Handler struct {
	svc       *Service
	cache     middleware.CacheFunc
	sensitive gin.HandlerFunc
	apiKey    gin.HandlerFunc
}

func NewHandler(svc *Service, cache middleware.CacheFunc, sensitive, apiKey gin.HandlerFunc) *Handler {
	passthrough := func(c *gin.Context) { c.Next() }
	if cache == nil {
		cache = middleware.PassthroughCache
	}
	if sensitive == nil {
		sensitive = passthrough
	}
	if apiKey == nil {
		apiKey = passthrough
	}
	return &Handler{svc: svc, cache: cache, sensitive: sensitive, apiKey: apiKey}
}

// RegisterRoutes mounts the quest engine under /quests, alongside the goal
// surface that owns the same prefix.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	quests := rg.Group("/quests", authMW)

	quests.POST("/createQuest", h.create)
	quests.POST("/check-completion", h.sensitive, h.checkCompletion)
	quests.GET("/analytics", h.apiKey, h.sensitive, h.cache(10*time.Minute), h.analytics)

	qq := quests.Group("/quests")
	qq.GET("", h.list)
	qq.GET("/:id", h.get)
	qq.PUT("/:id", h.update)
	qq.POST("/:id/start", h.start)
	qq.POST("/:id/cancel", h.cancel)
	qq.POST("/:id/fail", h.fail)
	qq.POST("/:id/complete", h.complete)

	tpl := quests.Group("/templates")
	tpl.GET("", h.cache(15*time.Minute), h.listTemplates)
	tpl.POST("", h.sensitive, h.createTemplate)
	tpl.GET("/:id", h.getTemplate)
	tpl.PUT("/:id", h.updateTemplate)
	tpl.DELETE("/:id", h.deleteTemplate)
	tpl.POST("/:id/instantiate", h.instantiate)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.svc.CreateQuest(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "quest", q.QuestID)
	response.Created(c, q)
}

func (h *Handler) list(c *gin.Context) {
	page := pagination.FromContext(c)
	quests, res, err := h.svc.ListQuests(c.Request.Context(), middleware.CurrentUserID(c), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, quests, pagination.Meta(page, res))
}

func (h *Handler) get(c *gin.Context) {
	q, err := h.svc.GetQuest(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.svc.UpdateQuest(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "quest", q.QuestID)
	response.OK(c, q)
}

func (h *Handler) start(c *gin.Context)    { h.doTransition(c, h.svc.Start) }
func (h *Handler) cancel(c *gin.Context)   { h.doTransition(c, h.svc.Cancel) }
func (h *Handler) fail(c *gin.Context)     { h.doTransition(c, h.svc.Fail) }
func (h *Handler) complete(c *gin.Context) { h.doTransition(c, h.svc.Complete) }

func (h *Handler) doTransition(c *gin.Context, fn func(ctx context.Context, userID, questID string) (*models.Quest, error)) {
	q, err := fn(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "quest", q.QuestID)
	response.OK(c, q)
}

func (h *Handler) checkCompletion(c *gin.Context) {
	report, err := h.svc.Sweep(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

func (h *Handler) analytics(c *gin.Context) {
	report, err := h.svc.Analytics(c.Request.Context(), middleware.CurrentUserID(c), c.Query("period"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

func (h *Handler) listTemplates(c *gin.Context) {
	page := pagination.FromContext(c)
	templates, res, err := h.svc.ListTemplates(c.Request.Context(), middleware.CurrentUserID(c), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, templates, pagination.Meta(page, res))
}

func (h *Handler) createTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tpl, err := h.svc.CreateTemplate(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "template", tpl.TemplateID)
	response.Created(c, tpl)
}

func (h *Handler) getTemplate(c *gin.Context) {
	tpl, err := h.svc.GetTemplate(c.Request.Context(), middleware.CurrentUserID(c), c.Query("owner"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tpl)
}

func (h *Handler) updateTemplate(c *gin.Context) {
	var req UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tpl, err := h.svc.UpdateTemplate(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tpl)
}

func (h *Handler) deleteTemplate(c *gin.Context) {
	if err := h.svc.DeleteTemplate(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) instantiate(c *gin.Context) {
	var req InstantiateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.svc.Instantiate(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "quest", q.QuestID)
	response.Created(c, q)
}
