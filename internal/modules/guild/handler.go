package guild

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/pkg/pagination"
	"github.com/questline/core/internal/pkg/response"
)

type Handler struct {
	svc       *Service
	cache     middleware.CacheFunc
	sensitive gin.HandlerFunc
}

func NewHandler(svc *Service, cache middleware.CacheFunc, sensitive gin.HandlerFunc) *Handler {
	if cache == nil {
		cache = middleware.PassthroughCache
	}
	if sensitive == nil {
		sensitive = func(c *gin.Context) { c.Next() }
	}
	return &Handler{svc: svc, cache: cache, sensitive: sensitive}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	guilds := rg.Group("/guilds", authMW)

	guilds.GET("", h.cache(5*time.Minute), h.listPublic)
	guilds.POST("", h.sensitive, h.create)
	guilds.GET("/mine", h.listMine)
	guilds.GET("/rankings", h.cache(10*time.Minute), h.rankings)

	guilds.GET("/:guildId", h.get)
	guilds.PUT("/:guildId", h.update)
	guilds.DELETE("/:guildId", h.sensitive, h.delete)

	guilds.POST("/:guildId/join", h.join)
	guilds.POST("/:guildId/leave", h.leave)
	guilds.GET("/:guildId/members", h.listMembers)
	guilds.DELETE("/:guildId/members/:userId", h.removeMember)

	guilds.POST("/:guildId/join-requests", h.createJoinRequest)
	guilds.GET("/:guildId/join-requests", h.listJoinRequests)
	guilds.PUT("/:guildId/join-requests/:userId/approve", h.approveJoinRequest)
	guilds.PUT("/:guildId/join-requests/:userId/reject", h.rejectJoinRequest)

	guilds.POST("/:guildId/moderators/:userId", h.assignModerator)
	guilds.DELETE("/:guildId/moderators/:userId", h.removeModerator)
	guilds.POST("/:guildId/transfer-ownership", h.sensitive, h.transferOwnership)
	guilds.POST("/:guildId/block/:userId", h.block)
	guilds.POST("/:guildId/unblock/:userId", h.unblock)

	guilds.PUT("/:guildId/settings/comments", h.toggleComments)

	guilds.GET("/:guildId/comments", h.listComments)
	guilds.POST("/:guildId/comments", h.createComment)
	guilds.GET("/:guildId/comments/:commentId/thread", h.thread)
	guilds.DELETE("/:guildId/comments/:commentId", h.deleteComment)
	guilds.POST("/:guildId/comments/:commentId/reactions", h.addReaction)
	guilds.DELETE("/:guildId/comments/:commentId/reactions/:kind", h.removeReaction)

	guilds.POST("/:guildId/avatar/upload-url", h.avatarUploadURL)
	guilds.POST("/:guildId/avatar/confirm", h.avatarConfirm)
}

func (h *Handler) listPublic(c *gin.Context) {
	page := pagination.FromContext(c)
	guilds, res, err := h.svc.ListPublic(c.Request.Context(), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, guilds, pagination.Meta(page, res))
}

func (h *Handler) create(c *gin.Context) {
	var req CreateGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g, err := h.svc.CreateGuild(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "guild", g.GuildID)
	response.Created(c, g)
}

func (h *Handler) listMine(c *gin.Context) {
	page := pagination.FromContext(c)
	guilds, res, err := h.svc.ListMine(c.Request.Context(), middleware.CurrentUserID(c), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, guilds, pagination.Meta(page, res))
}

func (h *Handler) rankings(c *gin.Context) {
	page := pagination.FromContext(c)
	guilds, res, err := h.svc.ListRankings(c.Request.Context(), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, guilds, pagination.Meta(page, res))
}

func (h *Handler) get(c *gin.Context) {
	g, err := h.svc.GetGuild(c.Request.Context(), c.Param("guildId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, g)
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g, err := h.svc.UpdateGuild(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "guild", g.GuildID)
	response.OK(c, g)
}

func (h *Handler) delete(c *gin.Context) {
	guildID := c.Param("guildId")
	if err := h.svc.DeleteGuild(c.Request.Context(), middleware.CurrentUserID(c), guildID); err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "guild", guildID)
	response.NoContent(c)
}

func (h *Handler) join(c *gin.Context) {
	member, err := h.svc.Join(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

func (h *Handler) leave(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listMembers(c *gin.Context) {
	page := pagination.FromContext(c)
	members, res, err := h.svc.ListMembers(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, members, pagination.Meta(page, res))
}

func (h *Handler) removeMember(c *gin.Context) {
	err := h.svc.RemoveMember(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) createJoinRequest(c *gin.Context) {
	var req JoinRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	jr, err := h.svc.CreateJoinRequest(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, jr)
}

func (h *Handler) listJoinRequests(c *gin.Context) {
	page := pagination.FromContext(c)
	requests, res, err := h.svc.ListJoinRequests(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, requests, pagination.Meta(page, res))
}

func (h *Handler) approveJoinRequest(c *gin.Context) {
	member, err := h.svc.ApproveJoinRequest(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

func (h *Handler) rejectJoinRequest(c *gin.Context) {
	jr, err := h.svc.RejectJoinRequest(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, jr)
}

func (h *Handler) assignModerator(c *gin.Context) {
	member, err := h.svc.AssignModerator(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

func (h *Handler) removeModerator(c *gin.Context) {
	member, err := h.svc.RemoveModerator(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

func (h *Handler) transferOwnership(c *gin.Context) {
	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g, err := h.svc.TransferOwnership(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req.NewOwnerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "guild", g.GuildID)
	response.OK(c, g)
}

func (h *Handler) block(c *gin.Context) {
	err := h.svc.Block(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) unblock(c *gin.Context) {
	err := h.svc.Unblock(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) toggleComments(c *gin.Context) {
	var req CommentsSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g, err := h.svc.ToggleComments(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, g)
}

func (h *Handler) listComments(c *gin.Context) {
	page := pagination.FromContext(c)
	comments, res, err := h.svc.ListComments(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), page)
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
	comment, err := h.svc.CreateComment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

func (h *Handler) thread(c *gin.Context) {
	page := pagination.FromContext(c)
	comments, res, err := h.svc.Thread(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("commentId"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, comments, pagination.Meta(page, res))
}

func (h *Handler) deleteComment(c *gin.Context) {
	err := h.svc.DeleteComment(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("commentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) addReaction(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.svc.AddReaction(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("commentId"), req.Kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

func (h *Handler) removeReaction(c *gin.Context) {
	err := h.svc.RemoveReaction(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), c.Param("commentId"), c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) avatarUploadURL(c *gin.Context) {
	var req AvatarUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.AvatarUploadURL(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) avatarConfirm(c *gin.Context) {
	var req AvatarConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g, err := h.svc.AvatarConfirm(c.Request.Context(), middleware.CurrentUserID(c), c.Param("guildId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, g)
}
