package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-analyzer/internal/analysis"
	"github.com/jonathan/portfolio-analyzer/internal/logging"
	"github.com/jonathan/portfolio-analyzer/internal/server/ratelimit"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// stubAnalyzer records started targets and serves scripted job statuses.
type stubAnalyzer struct {
	mu         sync.Mutex
	known      map[uuid.UUID]bool
	startErr   error
	started    []uuid.UUID
	statuses   map[uuid.UUID][]analysis.JobStatus
	statusCall map[uuid.UUID]int
}

func newStubAnalyzer() *stubAnalyzer {
	return &stubAnalyzer{
		known:      make(map[uuid.UUID]bool),
		statuses:   make(map[uuid.UUID][]analysis.JobStatus),
		statusCall: make(map[uuid.UUID]int),
	}
}

func (a *stubAnalyzer) start(id uuid.UUID) (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return uuid.Nil, a.startErr
	}
	if !a.known[id] {
		return uuid.Nil, fmt.Errorf("failed to load target: %w", types.ErrNotFound)
	}
	a.started = append(a.started, id)
	return uuid.New(), nil
}

func (a *stubAnalyzer) StartPortfolioAnalysis(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	return a.start(id)
}

func (a *stubAnalyzer) StartProjectAnalysis(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	return a.start(id)
}

// GetJobStatus returns the scripted statuses in order, repeating the last.
func (a *stubAnalyzer) GetJobStatus(_ context.Context, id uuid.UUID) (*analysis.JobStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	seq, ok := a.statuses[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	i := min(a.statusCall[id], len(seq)-1)
	a.statusCall[id]++
	status := seq[i]
	return &status, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, analyzer Analyzer, pinger Pinger, rl *ratelimit.Config) *Server {
	t.Helper()
	if rl == nil {
		rl = &ratelimit.Config{Enabled: false}
	}
	s := New(Config{
		Port:           "0",
		RateLimit:      rl,
		StreamInterval: 5 * time.Millisecond,
	}, analyzer, pinger, logging.Discard())
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), stubPinger{}, nil)

	w := do(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), stubPinger{err: errors.New("connection refused")}, nil)

	w := do(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode[map[string]string](t, w)["status"])
}

func TestStartPortfolioAnalysis(t *testing.T) {
	a := newStubAnalyzer()
	portfolioID := uuid.New()
	a.known[portfolioID] = true
	s := newTestServer(t, a, nil, nil)

	w := do(t, s, http.MethodPost, "/portfolios/"+portfolioID.String()+"/analysis")

	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[StartResponse](t, w)
	assert.Equal(t, "pending", resp.Status)
	_, err := uuid.Parse(resp.JobID)
	assert.NoError(t, err)
	assert.Equal(t, "/jobs/"+resp.JobID, w.Header().Get("Location"))
	assert.Equal(t, []uuid.UUID{portfolioID}, a.started)
}

func TestStartProjectAnalysis(t *testing.T) {
	a := newStubAnalyzer()
	projectID := uuid.New()
	a.known[projectID] = true
	s := newTestServer(t, a, nil, nil)

	w := do(t, s, http.MethodPost, "/projects/"+projectID.String()+"/analysis")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []uuid.UUID{projectID}, a.started)
}

func TestStartAnalysis_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		startErr error
		status   int
		message  string
	}{
		{
			name:    "invalid portfolio id",
			path:    "/portfolios/not-a-uuid/analysis",
			status:  http.StatusBadRequest,
			message: "invalid portfolio ID format",
		},
		{
			name:    "unknown project",
			path:    "/projects/" + uuid.NewString() + "/analysis",
			status:  http.StatusNotFound,
			message: "record not found",
		},
		{
			name:     "store failure",
			path:     "/portfolios/" + uuid.NewString() + "/analysis",
			startErr: errors.New("pool closed"),
			status:   http.StatusInternalServerError,
			message:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newStubAnalyzer()
			a.startErr = tt.startErr
			s := newTestServer(t, a, nil, nil)

			w := do(t, s, http.MethodPost, tt.path)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, decode[map[string]string](t, w)["error"], tt.message)
			assert.Empty(t, a.started)
		})
	}
}

func TestJobStatus(t *testing.T) {
	a := newStubAnalyzer()
	jobID := uuid.New()
	a.statuses[jobID] = []analysis.JobStatus{{
		JobID:    jobID,
		Target:   types.JobTarget{Kind: types.EntityPortfolio, ID: uuid.New()},
		Status:   types.JobProcessing,
		Progress: 50,
		Message:  "2 of 3 projects analyzed",
	}}
	s := newTestServer(t, a, nil, nil)

	w := do(t, s, http.MethodGet, "/jobs/"+jobID.String())

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[analysis.JobStatus](t, w)
	assert.Equal(t, jobID, resp.JobID)
	assert.Equal(t, types.JobProcessing, resp.Status)
	assert.Equal(t, 50, resp.Progress)
	assert.Equal(t, "2 of 3 projects analyzed", resp.Message)
}

func TestJobStatus_NotFound(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), nil, nil)

	w := do(t, s, http.MethodGet, "/jobs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/jobs/123")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	a := newStubAnalyzer()
	jobID := uuid.New()
	running := analysis.JobStatus{JobID: jobID, Status: types.JobProcessing, Progress: 25}
	a.statuses[jobID] = []analysis.JobStatus{
		running,
		running,
		{JobID: jobID, Status: types.JobProcessing, Progress: 50},
		{JobID: jobID, Status: types.JobCompleted, Progress: 100, Message: "Portfolio analyzed from all 3 projects"},
	}
	s := newTestServer(t, a, nil, nil)

	w := do(t, s, http.MethodGet, "/jobs/"+jobID.String()+"/events")

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var events []string
	var last analysis.JobStatus
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &last))
		}
	}

	// The repeated status is not re-sent
	assert.Equal(t, []string{"progress", "progress", "complete"}, events)
	assert.Equal(t, types.JobCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestJobEvents_UnknownJob(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), nil, nil)

	w := do(t, s, http.MethodGet, "/jobs/"+uuid.NewString()+"/events")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/portfolios/"+uuid.NewString()+"/analysis", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRateLimit(t *testing.T) {
	a := newStubAnalyzer()
	portfolioID := uuid.New()
	a.known[portfolioID] = true
	s := newTestServer(t, a, nil, &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(),
	})

	path := "/portfolios/" + portfolioID.String() + "/analysis"
	for i := 0; i < 2; i++ {
		w := do(t, s, http.MethodPost, path)
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(t, s, http.MethodPost, path)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, w)["error"])
	assert.Len(t, a.started, 2)

	// Health checks are never limited
	w = do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, newStubAnalyzer(), nil, nil)
	s.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
