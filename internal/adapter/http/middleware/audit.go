package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"pocket-ledger/internal/core/domain"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxAuditUser     = "audit_user_id"
	ctxAuditResource = "audit_resource_id"
)

// SetAuditSubject records which wallet and resource a write touched so
// AuditLog can attach them.
func SetAuditSubject(c *gin.Context, userID, resourceID string) {
	c.Set(ctxAuditUser, userID)
	c.Set(ctxAuditResource, resourceID)
}

// AuditLog creates an audit middleware that logs successful write operations.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var userID *string
		if uid := c.GetString(ctxAuditUser); uid != "" {
			userID = &uid
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(response.RequestIDKey),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(ctxAuditResource),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/wallet" && method == http.MethodPost:
		return domain.AuditActionWalletCreate, "wallet"
	case route == "/wallet/apply" && method == http.MethodPost:
		return domain.AuditActionWalletApply, "ledger_entry"
	}
	return "", ""
}
