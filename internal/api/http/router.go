package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessdesk/credpool/internal/api/http/handler"
	"github.com/accessdesk/credpool/internal/api/http/middleware"
	"github.com/accessdesk/credpool/internal/audit"
	"github.com/accessdesk/credpool/internal/auth"
	"github.com/accessdesk/credpool/internal/inventory"
	"github.com/accessdesk/credpool/internal/pool"
	"github.com/accessdesk/credpool/internal/secrets"
	"github.com/accessdesk/credpool/internal/users"
)

type Services struct {
	Auth      *auth.Service
	Users     *users.Service
	Pool      *pool.Service
	Inventory *inventory.Service
	Recorder  *audit.Recorder // Optional, can be nil
	Cipher    *secrets.Cipher
	DB        *pgxpool.Pool
	JWTSecret string
}

func SetupRoute(ctx context.Context, engine *gin.Engine, cfg Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())
	engine.Use(gin.Recovery())

	healthHandler := handler.NewHealthHandler(srvs.DB)
	engine.GET("/health", healthHandler.Check)

	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		limiter.StartJanitor(ctx)
		limit = limiter.Middleware()
	} else {
		limit = func(c *gin.Context) { c.Next() }
	}

	api := engine.Group("/api/v1")

	authHandler := handler.NewAuthHandler(srvs.Auth)
	api.POST("/auth/register", limit, authHandler.Register)
	api.POST("/auth/login", limit, authHandler.Login)

	allocationHandler := handler.NewAllocationHandler(srvs.Pool, srvs.Cipher)
	userHandler := handler.NewUserHandler(srvs.Users)

	// The limiter sits after JWTAuth so authenticated traffic is budgeted
	// per user rather than per source address.
	authed := api.Group("")
	authed.Use(middleware.JWTAuth(srvs.JWTSecret), limit)
	{
		authed.POST("/allocations", allocationHandler.Allocate)
		authed.GET("/allocations", allocationHandler.List)
		authed.GET("/allocations/:id/reveal", allocationHandler.Reveal)
		authed.POST("/allocations/release", allocationHandler.Release)
		authed.GET("/pool/availability", allocationHandler.Availability)
		authed.GET("/me", userHandler.Me)
	}

	// User administration is a human task, so it rides on JWT and the admin
	// role instead of the machine API key.
	userAdmin := authed.Group("")
	userAdmin.Use(middleware.RequireRole(users.RoleAdmin))
	{
		userAdmin.GET("/users", userHandler.ListUsers)
		userAdmin.DELETE("/users/:id", userHandler.DeleteUser)
	}

	adminHandler := handler.NewAdminHandler(srvs.Pool, srvs.Inventory, srvs.Recorder)
	admin := api.Group("/admin")
	admin.Use(middleware.APIKeyAuth(cfg.AdminAPIKey))
	{
		admin.POST("/credentials/import", adminHandler.ImportCredentials)
		admin.GET("/credentials/export", adminHandler.ExportCredentials)
		admin.POST("/credentials/retire", adminHandler.RetireCredentials)
		admin.POST("/allocations", adminHandler.AllocateForOwner)
		admin.GET("/audit-events", adminHandler.ListAuditEvents)
	}
}
