package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openvenue/seatclaim/internal/config"
	"github.com/openvenue/seatclaim/internal/handler"
	"github.com/openvenue/seatclaim/internal/middleware"
)

// RegisterRoutes registers routes that do not require session
// identity. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterClaims registers the shopper-facing claim endpoints. Every
// route resolves the anonymous session token first; the acquire and
// release paths additionally sit behind the redis token bucket so a
// seat-click storm from one terminal cannot starve the store.
func RegisterClaims(e *echo.Echo, h *handler.ClaimHandler, f *handler.FeedHandler, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/shows", middleware.SessionIdentity())

	limited := g.Group("", middleware.NewTokenBucket(rl, rdb))
	limited.POST("/:id/seats/:seat/claim", h.Acquire)
	limited.PUT("/:id/seats/:seat/claim", h.Renew)
	limited.DELETE("/:id/seats/:seat/claim", h.Release)

	g.GET("/:id/claims", h.Snapshot)
	g.GET("/:id/feed", f.Stream)
}

// RegisterOperator registers the operator-only endpoints: block
// toggling and the audited force-clear. Callers must present an
// OPERATOR JWT issued by the external auth service, on top of the
// same session identity shoppers carry.
func RegisterOperator(e *echo.Echo, h *handler.OperatorHandler, jwtSecret string) {
	g := e.Group("/v1/shows",
		middleware.SessionIdentity(),
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("OPERATOR"),
	)
	g.POST("/:id/seats/:seat/block", h.ToggleBlock)
	g.DELETE("/:id/seats/:seat/force", h.ForceClear)
}

// RegisterPayments registers the webhook boundary with the payment
// collaborator. These endpoints carry no shopper session; the claims
// they touch are addressed by show and seat.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler) {
	e.POST("/v1/payments/succeeded", h.Succeeded)
	e.POST("/v1/payments/failed", h.Failed)
}
