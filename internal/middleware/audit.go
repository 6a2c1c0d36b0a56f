package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/questline/core/internal/pkg/audit"
)

// AuditTrail emits one audit event for every authenticated request after
// the handler completes. Handlers may refine the record via SetAuditResource.
func AuditTrail(log *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		userID := CurrentUserID(c)
		if userID == "" {
			return
		}

		outcome := audit.OutcomeSuccess
		switch status := c.Writer.Status(); {
		case status == 401 || status == 403:
			outcome = audit.OutcomeDenied
		case status >= 400:
			outcome = audit.OutcomeFailure
		}

		resourceType, resourceID := auditResource(c)
		log.Emit(audit.Event{
			UserID:       userID,
			SourceIP:     c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Action:       c.Request.Method + " " + c.FullPath(),
			Outcome:      outcome,
		})
	}
}

const (
	ctxAuditResourceType = "audit_resource_type"
	ctxAuditResourceID   = "audit_resource_id"
)

// SetAuditResource lets a handler name the entity the request touched.
func SetAuditResource(c *gin.Context, resourceType, resourceID string) {
	c.Set(ctxAuditResourceType, resourceType)
	c.Set(ctxAuditResourceID, resourceID)
}

func auditResource(c *gin.Context) (string, string) {
	if t := c.GetString(ctxAuditResourceType); t != "" {
		return t, c.GetString(ctxAuditResourceID)
	}
	// Fall back to the first route segment and its first path param.
	segments := strings.SplitN(strings.TrimPrefix(c.FullPath(), "/"), "/", 2)
	resourceType := segments[0]
	resourceID := ""
	if len(c.Params) > 0 {
		resourceID = c.Params[0].Value
	}
	return resourceType, resourceID
}
