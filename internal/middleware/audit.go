package middleware

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-identity-api/internal/models"
	"github.com/noah-isme/sma-identity-api/pkg/middleware/requestid"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit appends an audit row for every request that completes below 400.
// The tenant comes from the :tenantId path parameter, falling back to the
// caller's own tenant; the resource id is the :id parameter when present.
func Audit(repo auditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if repo == nil || status >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:     action,
			Resource:   resource,
			ResourceID: models.StringRef(c.Param("id")),
			TenantID:   models.StringRef(c.Param("tenantId")),
			RequestID:  requestid.Value(c),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}
		if claims := Claims(c); claims != nil {
			entry.ActorID = models.StringRef(claims.UserID)
			entry.ActorRole = string(claims.Role)
			if entry.TenantID == nil {
				entry.TenantID = models.StringRef(claims.TenantID)
			}
		}
		entry.Details, _ = json.Marshal(map[string]interface{}{
			"route":  c.FullPath(),
			"method": c.Request.Method,
			"status": status,
		})

		if err := repo.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit log not recorded",
				zap.String("action", action),
				zap.String("request_id", entry.RequestID),
				zap.Error(err),
			)
		}
	}
}
