package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestMetricsMiddlewareExportsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m, err := SetupMetrics("test")
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "http_server_requests_total")
	assert.Contains(t, body, `http_route="/ping"`)
	assert.Contains(t, body, "http_server_duration_seconds")
}

func TestTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-span")
}

func TestResourceMergesWithSDKDefaults(t *testing.T) {
	res, err := newResource("character-nexus")
	require.NoError(t, err)

	assert.Equal(t, semconv.SchemaURL, res.SchemaURL())
	value, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "character-nexus", value.AsString())
}
