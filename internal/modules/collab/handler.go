package collab

import (
	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/pkg/pagination"
	"github.com/questline/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts invites, collaborators, and goal comments. The goal
// routes share the /quests prefix with the goal and quest modules.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	invites := rg.Group("/invites", authMW)
	invites.GET("", h.inbox)
	invites.POST("/:goalId/accept", h.accept)
	invites.POST("/:goalId/decline", h.decline)

	goals := rg.Group("/quests/:goalId", authMW)
	goals.POST("/invites", h.createInvite)
	goals.GET("/invites", h.listGoalInvites)
	goals.GET("/collaborators", h.collaborators)
	goals.GET("/comments", h.listComments)
	goals.POST("/comments", h.createComment)
	goals.POST("/comments/:commentId/reactions", h.addReaction)
	goals.DELETE("/comments/:commentId/reactions/:kind", h.removeReaction)
}

func (h *Handler) createInvite(c *gin.Context) {
	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	invite, err := h.svc.CreateInvite(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), req.InviteeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "invite", invite.GoalID)
	response.Created(c, invite)
}

func (h *Handler) inbox(c *gin.Context) {
	page := pagination.FromContext(c)
	invites, res, err := h.svc.ListInbox(c.Request.Context(), middleware.CurrentUserID(c), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, invites, pagination.Meta(page, res))
}

func (h *Handler) listGoalInvites(c *gin.Context) {
	page := pagination.FromContext(c)
	invites, res, err := h.svc.ListGoalInvites(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, invites, pagination.Meta(page, res))
}

func (h *Handler) accept(c *gin.Context) {
	invite, err := h.svc.Accept(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "invite", invite.GoalID)
	response.OK(c, invite)
}

func (h *Handler) decline(c *gin.Context) {
	invite, err := h.svc.Decline(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "invite", invite.GoalID)
	response.OK(c, invite)
}

func (h *Handler) collaborators(c *gin.Context) {
	page := pagination.FromContext(c)
	collaborators, res, err := h.svc.ListCollaborators(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, collaborators, pagination.Meta(page, res))
}

func (h *Handler) listComments(c *gin.Context) {
	page := pagination.FromContext(c)
	comments, res, err := h.svc.ListComments(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, comments, pagination.Meta(page, res))
}

func (h *Handler) createComment(c *gin.Context) {
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.svc.CreateComment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "comment", comment.CommentID)
	response.Created(c, comment)
}

func (h *Handler) addReaction(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.svc.AddReaction(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), c.Param("commentId"), req.Kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

func (h *Handler) removeReaction(c *gin.Context) {
	err := h.svc.RemoveReaction(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), c.Param("commentId"), c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
