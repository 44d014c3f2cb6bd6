package di

import (
	"context"
	"errors"
	"fmt"
	"os"

	"character-nexus/backend/internal/images"
	"character-nexus/backend/internal/importer"
	"character-nexus/backend/internal/repository"
	"character-nexus/backend/internal/scraper"
	"character-nexus/backend/internal/service"
	"character-nexus/backend/pkg/cache"
	"character-nexus/backend/pkg/config"
	"character-nexus/backend/pkg/database"
	"character-nexus/backend/pkg/health"
	"character-nexus/backend/pkg/logger"
	"character-nexus/backend/pkg/middleware"
	"character-nexus/backend/pkg/observability"
	"character-nexus/backend/pkg/resilience"

	"golang.org/x/time/rate"
)

const serviceName = "character-nexus"

// Container holds all the dependencies for the application
type Container struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               *database.DB
	Cache            cache.Store
	ImageStore       images.Store
	Images           *images.Processor
	Characters       *repository.CharacterRepository
	Conversations    *repository.ConversationRepository
	CharacterService *service.CharacterService
	Scraper          *scraper.HTMLScraper
	ScrapeBreaker    *resilience.CircuitBreaker
	Importer         *importer.Importer
	Health           *health.Checker
	RateLimiter      *middleware.RateLimiter
	// Metrics is nil when metrics are disabled.
	Metrics *observability.Metrics

	closers []func(ctx context.Context) error
}

// New opens the database and builds every component from cfg. On error the
// components opened so far are closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	c := &Container{Config: cfg, Logger: log}
	if err := c.build(ctx); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg, log := c.Config, c.Logger

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.SetupTracing(serviceName, os.Stdout)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		c.closers = append(c.closers, shutdown)
	}
	if cfg.Observability.MetricsEnabled {
		metrics, err := observability.SetupMetrics(serviceName)
		if err != nil {
			return fmt.Errorf("failed to set up metrics: %w", err)
		}
		c.Metrics = metrics
		c.closers = append(c.closers, metrics.Shutdown)
	}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, func(context.Context) error { return db.Close() })

	c.Cache = newCache(ctx, cfg, log)
	if c.Cache != nil {
		store := c.Cache
		c.closers = append(c.closers, func(context.Context) error { return store.Close() })
	}

	imageStore, err := newImageStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	c.ImageStore = imageStore
	c.Images = images.NewProcessor(imageStore, images.Options{
		MaxSize:         cfg.Images.MaxSize,
		MaxDimension:    cfg.Images.MaxDimension,
		Quality:         cfg.Images.Quality,
		DownloadTimeout: cfg.Images.DownloadTimeout,
		UserAgent:       cfg.Import.UserAgent,
	}, log)

	c.Characters = repository.NewCharacterRepository(db, log)
	c.Conversations = repository.NewConversationRepository(db, log)
	c.CharacterService = service.NewCharacterService(c.Characters, c.Cache, cfg.Cache.TTL, c.Images, log)

	c.Scraper = scraper.NewHTMLScraper(scraper.Options{
		Timeout:   cfg.Import.ScrapeTimeout,
		UserAgent: cfg.Import.UserAgent,
	}, log)
	breakerConfig := resilience.DefaultConfig("scraper")
	breakerConfig.Timeout = cfg.Import.ScrapeTimeout
	c.ScrapeBreaker = resilience.NewCircuitBreaker(breakerConfig, log)
	c.Importer = importer.New(c.CharacterService, c.Scraper, c.Images, c.ScrapeBreaker, importer.Options{
		AllowedDomains: cfg.Import.AllowedDomains,
		ForbiddenPaths: cfg.Import.ForbiddenPaths,
	}, log)

	c.Health = health.NewChecker(log, cfg.Server.HealthInterval)
	c.Health.RegisterPingCheck("database", true, db.Ping)
	c.Health.RegisterPingCheck("images", false, imageStore.Ping)
	if r, ok := c.Cache.(*cache.Redis); ok {
		c.Health.RegisterPingCheck("cache", false, r.Ping)
	}

	limiterOptions := middleware.DefaultRateLimiterOptions()
	limiterOptions.Limit = rate.Limit(cfg.Security.RateLimit)
	limiterOptions.Burst = cfg.Security.RateLimitBurst
	c.RateLimiter = middleware.NewRateLimiter(log, limiterOptions)

	return nil
}

// newCache picks Redis when REDIS_URL is set and reachable, falling back to
// the in-process store. A disabled cache yields nil.
func newCache(ctx context.Context, cfg *config.Config, log *logger.Logger) cache.Store {
	if !cfg.Cache.Enabled {
		return nil
	}
	if cfg.Cache.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, serviceName)
		if err == nil {
			log.Info("Using Redis cache")
			return r
		}
		log.Warn("Redis unavailable, using in-memory cache", "error", err.Error())
	}
	return cache.NewMemory(cfg.Cache.MaxSize, cfg.Cache.PurgeWindow)
}

func newImageStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (images.Store, error) {
	if cfg.MinioEnabled() {
		store, err := images.NewMinioStore(ctx, images.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to image bucket: %w", err)
		}
		log.Info("Storing images in MinIO", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
		return store, nil
	}

	store, err := images.NewLocalStore(cfg.Images.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image directory: %w", err)
	}
	return store, nil
}

// Close releases everything New opened, most recent first.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
