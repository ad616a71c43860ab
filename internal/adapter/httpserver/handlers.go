package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/puzzler-io/puzzler/internal/config"
	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/streamer"
	"github.com/puzzler-io/puzzler/internal/usecase"
)

// Version is the API version reported by the metadata endpoint.
const Version = "1.0.0"

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Submit     *usecase.SubmitService
	Query      *usecase.QueryService
	Stream     *streamer.Streamer
	RedisCheck func(ctx context.Context) error
	QueueCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, submit *usecase.SubmitService, query *usecase.QueryService, stream *streamer.Streamer, redisCheck, queueCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Submit: submit, Query: query, Stream: stream, RedisCheck: redisCheck, QueueCheck: queueCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type sudokuRequest struct {
	Grid []string `json:"grid" validate:"required,len=9,dive,len=9"`
}

// SubmitSudokuHandler accepts a nine-row grid submission and enqueues it on
// the pipeline selected by typ.
func (s *Server) SubmitSudokuHandler(typ domain.ProblemType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req sudokuRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs["grid"] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		grid, err := domain.ParseGridRows(req.Grid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		p, err := s.Submit.Submit(r.Context(), typ, domain.NameSudoku, map[string]any{"grid": grid})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"task_id": p.ID})
	}
}

// GetProblemHandler returns the full problem record.
func (s *Server) GetProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := s.Query.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// PrintProblemHandler renders the grid as text.
func (s *Server) PrintProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		out, err := s.Query.Print(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
	}
}

// PingHandler answers liveness probes.
func (s *Server) PingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}
}

// RootHandler reports service metadata.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"name":        "puzzler",
			"version":     Version,
			"environment": s.Cfg.Environment,
		})
	}
}

// ReadyzHandler checks the KV store and the broker.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		if s.QueueCheck != nil {
			if err := s.QueueCheck(ctx); err != nil {
				checks = append(checks, check{Name: "rabbitmq", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "rabbitmq", OK: true})
			}
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
