package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{
		Limit: rate.Every(time.Hour),
		Burst: 2,
		KeyFunc: func(c *gin.Context) string {
			return c.GetHeader("X-Client")
		},
	})

	r := gin.New()
	r.Use(apperrors.ErrorHandler(), rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client", client)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send("a").Code)
	assert.Equal(t, http.StatusNoContent, send("a").Code)

	w := send("a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), apperrors.CodeRateLimited)

	assert.Equal(t, http.StatusNoContent, send("b").Code, "clients are limited independently")
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{Limit: 1, Burst: 1, ExpiryDuration: time.Minute})
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(2 * time.Minute)
	rl.allow("b")
	rl.sweep()

	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "b")
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
