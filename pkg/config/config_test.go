package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Import.ScrapeTimeout)
	assert.Equal(t, int64(5<<20), cfg.Images.MaxSize)
	assert.Equal(t, 1024, cfg.Images.MaxDimension)
	assert.Equal(t, []string{"janitorai.com", "www.janitorai.com"}, cfg.Import.AllowedDomains)
	assert.Contains(t, cfg.Import.ForbiddenPaths, "/dashboard")
	assert.False(t, cfg.MinioEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("SCRAPE_TIMEOUT", "10000")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_BUCKET", "avatars")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Import.ScrapeTimeout)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.MinioEnabled())
}

func TestDSNEnablesForeignKeys(t *testing.T) {
	dsn := DatabaseConfig{Path: "/tmp/x.sqlite", BusyTimeout: 2 * time.Second}.DSN()

	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/x.sqlite?"))
	assert.Contains(t, dsn, "_foreign_keys=on")
	assert.Contains(t, dsn, "_busy_timeout=2000")
}
