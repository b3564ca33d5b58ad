package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklane/picklane/internal/inventory"
	"github.com/picklane/picklane/internal/observability"
	_ "github.com/picklane/picklane/internal/testing/guard"
)

func newSmokeRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := inventory.NewService(nil, nil, nil, nil, slog.Default(), inventory.DefaultLimits())
	return NewRouter(RouterParams{
		Logger:           slog.Default(),
		Config:           &Config{AppEnv: "development"},
		InventoryHandler: inventory.NewHandler(slog.Default(), svc),
		Metrics:          observability.NewMetrics(),
	})
}

func TestRouterHealthz(t *testing.T) {
	router := newSmokeRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterExposesMetrics(t *testing.T) {
	router := newSmokeRouter(t)

	// Drive one request through the middleware so the counters have samples.
	warm := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "picklane_http_requests_total")
}

func TestRouterSetsSecurityHeaders(t *testing.T) {
	router := newSmokeRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
