package router

import (
	"net/http"
	"time"

	"character-nexus/backend/internal/api"
	"character-nexus/backend/pkg/config"
	"character-nexus/backend/pkg/di"
	"character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"
	"character-nexus/backend/pkg/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container and installs the
// middleware chain shared by every route.
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// The logger comes first so every later middleware sees the request logger.
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	if container.Metrics != nil {
		engine.Use(container.Metrics.Middleware())
	}
	engine.Use(container.RateLimiter.Middleware())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(middleware.BodyLimit(cfg.Security.MaxBodySize))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes. Request validation is
// installed first so it covers every route registered after it.
func (r *Router) SetupRoutes() {
	if path := r.Config.Observability.OpenAPISpecPath; path != "" {
		r.AddOpenAPIValidation(path)
	}

	c := r.Container
	group := r.Engine.Group("/api")

	api.NewHealthHandler(c.Health, r.Config.Server.Version, r.Config.Server.Env).RegisterRoutes(group)
	api.NewCharacterHandler(c.CharacterService).RegisterRoutes(group)
	api.NewChatHandler(c.Conversations).RegisterRoutes(group)
	api.NewImportHandler(c.Importer).RegisterRoutes(group)
	api.NewImageHandler(c.ImageStore, c.Images, r.Config.Images.MaxSize).RegisterRoutes(group)

	r.setupOperationalRoutes()

	r.Engine.NoRoute(func(ctx *gin.Context) {
		_ = ctx.Error(errors.NewNotFoundError(errors.CodeNotFound, "Route not found: "+ctx.Request.Method+" "+ctx.Request.URL.Path))
	})
	r.Engine.NoMethod(func(ctx *gin.Context) {
		_ = ctx.Error(errors.NewError(errors.KindValidation, http.StatusMethodNotAllowed, errors.CodeValidation,
			"Method not allowed: "+ctx.Request.Method+" "+ctx.Request.URL.Path))
	})
}

// corsMiddleware allows the configured origins. A "*" entry opens the API to any origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", logger.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cors.New(cfg)
}
