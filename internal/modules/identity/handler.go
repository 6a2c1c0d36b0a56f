package identity

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/middleware"
	"github.com/questline/core/internal/pkg/response"
)

type Handler struct {
	svc    *Service
	cache  middleware.CacheFunc
	apiKey gin.HandlerFunc
}

func NewHandler(svc *Service, cache middleware.CacheFunc, apiKey gin.HandlerFunc) *Handler {
	if cache == nil {
		cache = middleware.PassthroughCache
	}
	if apiKey == nil {
		apiKey = func(c *gin.Context) { c.Next() }
	}
	return &Handler{svc: svc, cache: cache, apiKey: apiKey}
}

// RegisterRoutes wires the account lifecycle. Signup/login/verify sit behind
// the edge api key; everything else requires a bearer token.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	users := rg.Group("/users")
	users.POST("/signup", h.apiKey, h.signup)
	users.POST("/login", h.apiKey, h.login)
	users.POST("/login/google", h.apiKey, h.loginGoogle)
	users.POST("/verify-email", h.apiKey, h.verifyEmail)
	users.POST("/logout", authMW, h.logout)

	rg.POST("/auth/renew", authMW, h.renew)

	profile := rg.Group("/profile", authMW)
	profile.GET("", h.cache(5*time.Minute), h.getProfile)
	profile.PUT("", h.updateProfile)
}

func (h *Handler) signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.Signup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "user", res.UserID)
	response.Created(c, res)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "user", res.UserID)
	response.OK(c, res)
}

func (h *Handler) loginGoogle(c *gin.Context) {
	var req FederatedLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.LoginFederated(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, "user", res.UserID)
	response.OK(c, res)
}

func (h *Handler) renew(c *gin.Context) {
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.Renew(c.Request.Context(), req, middleware.CurrentPrincipal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) logout(c *gin.Context) {
	raw := middleware.NormalizeToken(c.GetHeader("Authorization"))
	if err := h.svc.Logout(c.Request.Context(), raw, middleware.CurrentPrincipal(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.svc.GetProfile(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var patch ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	profile, err := h.svc.UpdateProfile(c.Request.Context(), middleware.CurrentUserID(c), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}
