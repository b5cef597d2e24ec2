package handler

import (
	"net/http"

	"pocket-ledger/internal/adapter/http/middleware"
	redisStore "pocket-ledger/internal/adapter/storage/redis"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	TokenSvc       ports.TokenService         // nil = bearer identity disabled
	APIKey         string                     // empty = X-API-Key check disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	APIDoc         []byte             // OpenAPI document served under /swagger
	Mode           string             // gin mode; empty = release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: PostgreSQL and Redis when configured)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	docs := NewAPIDocs(deps.APIDoc)
	swagger := r.Group("/swagger")
	{
		swagger.GET("", docs.Page)
		swagger.GET("/spec", docs.Spec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	walletHandler := NewWalletHandler(deps.LedgerSvc)
	wallet := r.Group("/wallet",
		middleware.APIKeyAuth(deps.APIKey),
		middleware.IdentityAuth(deps.TokenSvc),
	)
	{
		wallet.POST("", rl(middleware.GroupWalletCreate), walletHandler.CreateWallet)
		wallet.POST("/apply", rl(middleware.GroupWalletApply), walletHandler.ApplyDelta)
		wallet.GET("/:userId", rl(middleware.GroupWalletRead), walletHandler.GetBalance)
		wallet.GET("/:userId/entries", rl(middleware.GroupWalletRead), walletHandler.ListEntries)
		wallet.GET("/:userId/verify", rl(middleware.GroupWalletRead), walletHandler.VerifyChain)
	}

	return r
}

// WithCORS wraps h with a CORS policy for the given origins. No origins
// leaves h unwrapped.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderAPIKey, middleware.HeaderRequestID},
		ExposedHeaders: []string{
			middleware.HeaderRequestID,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
		},
		MaxAge: 300,
	})(h)
}
