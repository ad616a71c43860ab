package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/puzzler-io/puzzler/internal/adapter/httpserver"
	"github.com/puzzler-io/puzzler/internal/config"
	"github.com/puzzler-io/puzzler/internal/streamer"
)

func TestParseOrigins(t *testing.T) {
	require.Equal(t, []string{"*"}, ParseOrigins(""))
	require.Equal(t, []string{"*"}, ParseOrigins("*"))
	require.Equal(t, []string{"*"}, ParseOrigins(" , "))
	require.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		ParseOrigins(" https://a.example, https://b.example "))
}

func TestBuildRouterPlumbing(t *testing.T) {
	cfg := config.Config{Environment: "test", RateLimitPerMin: 60, CORSAllowOrigins: "*"}
	srv := httpserver.NewServer(cfg, nil, nil, streamer.New(nil), nil, nil)
	router := BuildRouter(cfg, srv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code, "no checks wired means ready")
}
