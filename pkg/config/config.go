package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port            string
		Env             string
		Version         string
		Timeout         time.Duration
		ShutdownTimeout time.Duration
		HealthInterval  time.Duration
	}

	Database DatabaseConfig

	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	Logging struct {
		Level  string
		Format string
	}

	Images struct {
		Dir             string
		MaxSize         int64
		MaxDimension    int
		Quality         int
		DownloadTimeout time.Duration
	}

	// Storage selects MinIO for images when Endpoint and Bucket are set.
	Storage struct {
		Endpoint  string
		AccessKey string
		SecretKey string
		Bucket    string
		UseSSL    bool
	}

	Import struct {
		ScrapeTimeout  time.Duration
		UserAgent      string
		AllowedDomains []string
		ForbiddenPaths []string
	}

	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
		RedisURL    string
	}

	Observability struct {
		TracingEnabled  bool
		MetricsEnabled  bool
		OpenAPISpecPath string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads the environment into a fresh Config without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("SERVER_PORT", "3000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second)
	cfg.Server.Version = getEnvString("APP_VERSION", "dev")
	cfg.Server.HealthInterval = getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second)

	cfg.Database.Path = getEnvString("DATABASE_PATH", "./data/db.sqlite")
	cfg.Database.BusyTimeout = getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 4)
	cfg.Database.ConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 3)
	cfg.Database.RetryDelay = getEnvDuration("DB_RETRY_DELAY", time.Second)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 20)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 40)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 10<<20)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Images.Dir = getEnvString("IMAGE_DIR", "./characters/images")
	cfg.Images.MaxSize = getEnvInt64("MAX_IMAGE_SIZE", 5<<20)
	cfg.Images.MaxDimension = getEnvInt("IMAGE_MAX_DIMENSION", 1024)
	cfg.Images.Quality = getEnvInt("IMAGE_QUALITY", 80)
	cfg.Images.DownloadTimeout = getEnvDuration("IMAGE_DOWNLOAD_TIMEOUT", 15*time.Second)

	cfg.Storage.Endpoint = getEnvString("MINIO_ENDPOINT", "")
	cfg.Storage.AccessKey = getEnvString("MINIO_ACCESS_KEY", "")
	cfg.Storage.SecretKey = getEnvString("MINIO_SECRET_KEY", "")
	cfg.Storage.Bucket = getEnvString("MINIO_BUCKET", "")
	cfg.Storage.UseSSL = getEnvBool("MINIO_USE_SSL", false)

	cfg.Import.ScrapeTimeout = getEnvDuration("SCRAPE_TIMEOUT", 30*time.Second)
	cfg.Import.UserAgent = getEnvString("SCRAPE_USER_AGENT", "CharacterNexus/0.1 (+self-hosted)")
	cfg.Import.AllowedDomains = getEnvStringSlice("SCRAPE_ALLOWED_DOMAINS", []string{"janitorai.com", "www.janitorai.com"})
	cfg.Import.ForbiddenPaths = getEnvStringSlice("SCRAPE_FORBIDDEN_PATHS",
		[]string{"/admin", "/api", "/settings", "/account", "/login", "/logout", "/dashboard"})

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)
	cfg.Cache.RedisURL = getEnvString("REDIS_URL", "")

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.Observability.OpenAPISpecPath = getEnvString("OPENAPI_SPEC_PATH", "./api/openapi.yaml")

	return cfg
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// MinioEnabled reports whether image storage should go to MinIO.
func (c *Config) MinioEnabled() bool {
	return c.Storage.Endpoint != "" && c.Storage.Bucket != ""
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Bare integers are milliseconds, matching SCRAPE_TIMEOUT=30000 style values.
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
