package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"pocket-ledger/internal/core/ports"
	"pocket-ledger/pkg/apperror"
	"pocket-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLength = 128

	// Context keys
	CtxUserID = "user_id"
)

// RequestID echoes a caller-supplied X-Request-ID or generates one, and
// stores it where pkg/response picks it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// APIKeyAuth rejects requests whose X-API-Key does not match apiKey.
// An empty apiKey disables the check.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(HeaderAPIKey))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}
		c.Next()
	}
}

// IdentityAuth validates the bearer token and stores its subject under
// CtxUserID. A nil tokenSvc disables identity checks entirely.
func IdentityAuth(tokenSvc ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenSvc == nil {
			c.Next()
			return
		}
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || token == "" {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(token)
		if err != nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Next()
	}
}

// AuthorizeUser reports whether the caller may act on userID. When
// IdentityAuth verified a subject it must equal userID; otherwise any
// caller that passed the API key check is trusted. On false a 403 has
// already been written.
func AuthorizeUser(c *gin.Context, userID string) bool {
	verified := c.GetString(CtxUserID)
	if verified == "" || verified == userID {
		return true
	}
	response.Error(c, apperror.ErrForbidden())
	c.Abort()
	return false
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(response.RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": apperror.CodeInternal,
					"message":    "Internal server error",
					"request_id": c.GetString(response.RequestIDKey),
				})
			}
		}()
		c.Next()
	}
}
