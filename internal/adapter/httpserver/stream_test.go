package httpserver

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/puzzler-io/puzzler/internal/domain"
)

func sseFrames(body string) []string {
	var frames []string
	for _, part := range strings.Split(body, "\n\n") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "data: ") {
			frames = append(frames, strings.TrimPrefix(part, "data: "))
		}
	}
	return frames
}

func TestSubscribeUnknownProblem(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/problems/subscribe/missing", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscribeRejectsBadTTL(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Put(context.Background(), domain.Problem{ID: "p", Status: domain.StatusInQueue}))

	for _, ttl := range []string{"abc", "0", "-5"} {
		rec := env.do(http.MethodGet, "/problems/subscribe/p?ttl="+ttl, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, "ttl=%s", ttl)
	}
}

func TestSubscribeReplaysTerminalState(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Put(context.Background(), domain.Problem{
		ID:           "done",
		Status:       domain.StatusSolved,
		Solution:     map[string]any{"grid": [][]int{{1}}},
		SolutionTime: 0.5,
	}))

	rec := env.do(http.MethodGet, "/problems/subscribe/done", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 2)
	require.Contains(t, frames[0], `"type":"connected"`)
	require.Contains(t, frames[0], `"problem_id":"done"`)
	require.Contains(t, frames[1], `"status":"SOLVED"`)
	require.Contains(t, frames[1], `"puzzle_id":"done"`, "legacy field still emitted")
}

func TestSubscribeTimesOut(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Put(context.Background(), domain.Problem{ID: "slow", Status: domain.StatusInQueue}))

	rec := env.do(http.MethodGet, "/problems/subscribe/slow?ttl=1", "")

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 2)
	require.Contains(t, frames[0], `"type":"connected"`)
	require.Contains(t, frames[0], `"ttl":1`)
	require.Contains(t, frames[1], `"type":"timeout"`)
	require.Zero(t, env.stream.Subscribers("slow"), "subscription released on timeout")
}

// readFrame blocks until one full SSE frame arrives and returns its data
// line.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	data := ""
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if data != "" {
				return data
			}
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSubscribeReceivesPublishedFrame(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Put(context.Background(), domain.Problem{ID: "live", Status: domain.StatusInProgress}))

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/problems/subscribe/live?ttl=30")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	require.Contains(t, readFrame(t, reader), `"type":"connected"`)

	require.Eventually(t, func() bool {
		return env.stream.Subscribers("live") == 1
	}, time.Second, 5*time.Millisecond)
	env.stream.Publish("live", []byte(`{"problem_id":"live","status":"SOLVED"}`))

	require.Contains(t, readFrame(t, reader), `"status":"SOLVED"`)
}
