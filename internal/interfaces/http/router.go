// Package http assembles the REST API: routes, middleware, and the server
// lifecycle.
package http

import (
	"github.com/gin-gonic/gin"

	appuser "github.com/dealdeskhq/dealdesk/internal/application/user"
	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/internal/interfaces/http/handlers"
	"github.com/dealdeskhq/dealdesk/internal/interfaces/http/middleware"
)

// RouterConfig aggregates everything the router needs. All fields except
// the optional ones noted below are required.
type RouterConfig struct {
	ServerConfig config.ServerConfig
	Logger       logging.Logger
	Metrics      *metrics.Metrics // optional

	Verifier auth.Verifier
	Users    appuser.Service

	ContractHandler *handlers.ContractHandler
	CalendarHandler *handlers.CalendarHandler
	ReminderHandler *handlers.ReminderHandler
	UploadHandler   *handlers.UploadHandler
	UserHandler     *handlers.UserHandler
	HealthHandler   *handlers.HealthHandler

	CORS      *middleware.CORSConfig      // nil disables CORS
	RateLimit *middleware.RateLimitConfig // nil disables rate limiting
}

// NewRouter builds the gin engine with the full middleware chain and all
// routes mounted. Probes and metrics stay outside the authenticated group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.ServerConfig.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.RateLimit != nil {
		r.Use(middleware.RateLimit(*cfg.RateLimit))
	}
	if cfg.ServerConfig.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.ServerConfig.MaxUploadBytes
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Verifier, cfg.Users, cfg.Logger))
	{
		cfg.ContractHandler.RegisterRoutes(api)
		cfg.CalendarHandler.RegisterRoutes(api)
		cfg.ReminderHandler.RegisterRoutes(api)
		cfg.UploadHandler.RegisterRoutes(api)
		cfg.UserHandler.RegisterRoutes(api)
	}

	return r
}
