package goal

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

// RegisterRoutes mounts the goal/task surface under /quests. The quest
// engine shares the prefix and registers its own routes alongside.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	quests := rg.Group("/quests", authMW)

	quests.GET("", h.cache(5*time.Minute), h.list)
	quests.POST("", h.sensitive, h.create)
	quests.GET("/progress", h.allProgress)

	quests.POST("/createTask", h.createTask)
	quests.PUT("/tasks/:taskId", h.updateTask)
	quests.DELETE("/tasks/:taskId", h.deleteTask)
	quests.POST("/tasks/:taskId/complete", h.completeTask)

	quests.GET("/:goalId/progress", h.progress)
	quests.PUT("/:goalId", h.update)
	quests.DELETE("/:goalId", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	page := pagination.FromContext(c)
	goals, res, err := h.svc.ListGoals(c.Request.Context(), middleware.CurrentUserID(c), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, goals, pagination.Meta(page, res))
}

func (h *Handler) create(c *gin.Context) {
	var req CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	view, err := h.svc.CreateGoal(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "goal", view.GoalID)
	response.Created(c, view)
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g, err := h.svc.UpdateGoal(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "goal", g.GoalID)
	response.OK(c, g)
}

func (h *Handler) delete(c *gin.Context) {
	goalID := c.Param("goalId")
	if err := h.svc.DeleteGoal(c.Request.Context(), middleware.CurrentUserID(c), goalID); err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "goal", goalID)
	response.NoContent(c)
}

func (h *Handler) createTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.CreateTask(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "task", t.TaskID)
	response.Created(c, t)
}

func (h *Handler) updateTask(c *gin.Context) {
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.UpdateTask(c.Request.Context(), middleware.CurrentUserID(c), c.Param("taskId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

func (h *Handler) deleteTask(c *gin.Context) {
	err := h.svc.DeleteTask(c.Request.Context(), middleware.CurrentUserID(c), c.Query("goal_id"), c.Param("taskId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) completeTask(c *gin.Context) {
	var req CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	view, err := h.svc.CompleteTask(c.Request.Context(), middleware.CurrentUserID(c), req.GoalID, c.Param("taskId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

func (h *Handler) progress(c *gin.Context) {
	view, err := h.svc.GoalProgress(c.Request.Context(), middleware.CurrentUserID(c), c.Param("goalId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

func (h *Handler) allProgress(c *gin.Context) {
	views, err := h.svc.AllGoalProgress(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, views)
}
