package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/puzzler-io/puzzler/internal/domain"
)

// maxStreamTTL caps client-requested subscription lifetimes.
const maxStreamTTL = time.Hour

type streamFrame struct {
	Type      string `json:"type"`
	ProblemID string `json:"problem_id,omitempty"`
	TTL       int    `json:"ttl,omitempty"`
}

// SubscribeHandler streams result frames for one problem over SSE. The
// subscription times out after ttl seconds without a delivery; each delivery
// resets the clock.
func (s *Server) SubscribeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ttl := s.Cfg.StreamTTL
		if raw := r.URL.Query().Get("ttl"); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil || secs <= 0 {
				writeError(w, r, fmt.Errorf("%w: ttl must be a positive integer", domain.ErrInvalidArgument), nil)
				return
			}
			ttl = time.Duration(secs) * time.Second
		}
		if ttl <= 0 || ttl > maxStreamTTL {
			ttl = maxStreamTTL
		}

		p, err := s.Query.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: streaming unsupported", domain.ErrInvalidArgument), nil)
			return
		}

		sub := s.Stream.Subscribe(id)
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		writeFrame(w, flusher, mustJSON(streamFrame{Type: "connected", ProblemID: id, TTL: int(ttl.Seconds())}))

		// A record already settled before the subscription has no further
		// queue traffic; replay its terminal state as the only data frame.
		if p.Status.Terminal() {
			writeFrame(w, flusher, terminalFrame(p))
			return
		}

		timer := time.NewTimer(ttl)
		defer timer.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case payload := <-sub.C:
				writeFrame(w, flusher, payload)
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(ttl)
			case <-timer.C:
				writeFrame(w, flusher, mustJSON(streamFrame{Type: "timeout", ProblemID: id}))
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, payload []byte) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func terminalFrame(p domain.Problem) []byte {
	msg := domain.ResultMessage{
		ProblemID:    p.ID,
		LegacyID:     p.ID,
		Status:       string(p.Status),
		ErrorMessage: p.ErrorMessage,
	}
	if p.Solution != nil {
		if b, err := json.Marshal(p.Solution); err == nil {
			msg.Output = string(b)
		}
	}
	if p.SolutionTime > 0 {
		msg.SolutionTime = strconv.FormatFloat(p.SolutionTime, 'f', -1, 64)
	}
	return mustJSON(msg)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return b
}
