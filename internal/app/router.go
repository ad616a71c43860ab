// Package app assembles the HTTP surface of the API process.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/puzzler-io/puzzler/internal/adapter/httpserver"
	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/config"
	"github.com/puzzler-io/puzzler/internal/domain"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces. Empty
// input allows every origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
// The subscribe route stays outside any request-timeout wrapper: SSE
// connections live as long as their TTL.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit the mutating endpoints only.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/problems/ip/sudoku", srv.SubmitSudokuHandler(domain.TypeIP))
		wr.Post("/problems/sat/sudoku", srv.SubmitSudokuHandler(domain.TypeSAT))
	})

	r.Get("/problems/subscribe/{id}", srv.SubscribeHandler())
	r.Get("/problems/print/{id}", srv.PrintProblemHandler())
	r.Get("/problems/{id}", srv.GetProblemHandler())

	r.Get("/", srv.RootHandler())
	r.Get("/ping", srv.PingHandler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return httpserver.SecurityHeaders(r)
}
