package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", JSON: true, Output: &buf})

	l.Info("login attempt", "password", "hunter2", "Authorization", "Bearer abc", "user", "ana")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, Redacted, entry["password"])
	assert.Equal(t, Redacted, entry["Authorization"])
	assert.Equal(t, "ana", entry["user"])
}

func TestRedactsPreboundAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", JSON: true, Output: &buf}).With("token", "xyz")

	l.Info("call")

	assert.NotContains(t, buf.String(), "xyz")
	assert.Contains(t, buf.String(), Redacted)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := New(Config{Level: "info", JSON: true, Output: &buf})

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/ping", func(c *gin.Context) {
		assert.NotNil(t, FromContext(c))
		c.String(http.StatusOK, "pong")
	})

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("keeps upstream id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
		assert.Contains(t, buf.String(), "req-123")
	})
}
