package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/livebox/api/handler"
	"github.com/use-agent/livebox/api/middleware"
	"github.com/use-agent/livebox/cache"
	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//	Login:   Auth (if enabled)
//
// Health stays outside auth so health checks always work. Login is not
// rate limited: it blocks until the user signs in and concurrent calls share
// one login window. cc and wh may be nil. Background middleware state is
// released when ctx ends.
func NewRouter(ctx context.Context, svc handler.Service, cfg *config.Config, cc *cache.Cache, wh *webhook.Notifier, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(svc, startTime))

	authed := v1.Group("")
	if cfg.API.AuthEnabled {
		authed.Use(middleware.Auth(cfg.API.APIKeys))
	}
	authed.POST("/login", handler.Login(svc))

	limited := authed.Group("")
	limited.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	limited.POST("/scrape", handler.Scrape(svc, cc, wh))

	limited.GET("/credentials", handler.GetCredentials(svc))
	limited.PUT("/credentials", handler.PutCredentials(svc))
	limited.DELETE("/credentials", handler.DeleteCredentials(svc))

	return r
}
