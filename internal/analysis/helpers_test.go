package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-analyzer/internal/admission"
	"github.com/jonathan/portfolio-analyzer/internal/fetch"
	"github.com/jonathan/portfolio-analyzer/internal/jobs"
	"github.com/jonathan/portfolio-analyzer/internal/llm"
	"github.com/jonathan/portfolio-analyzer/internal/logging"
	"github.com/jonathan/portfolio-analyzer/internal/memstore"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

var errQuota = errors.New("provider quota exceeded")

// fakeProvider scripts provider behavior by substring of the call key. For
// media calls the key is the fetched bytes or URI; for synthesis it is the prompt.
type fakeProvider struct {
	mu          sync.Mutex
	failAnalyze map[string]int // remaining failures; negative fails forever
	failEmbed   map[string]bool
	blocks      map[string]chan struct{}
	delay       time.Duration
	prompts     []string
	parts       []llm.Part

	analyzeCalls atomic.Int32
	embedCalls   atomic.Int32
	inFlight     atomic.Int32
	peak         atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		failAnalyze: make(map[string]int),
		failEmbed:   make(map[string]bool),
		blocks:      make(map[string]chan struct{}),
	}
}

// failAlways makes every analysis call whose key contains substr fail.
func (f *fakeProvider) failAlways(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAnalyze[substr] = -1
}

// failTimes makes the next n analysis calls whose key contains substr fail.
func (f *fakeProvider) failTimes(substr string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAnalyze[substr] = n
}

// hold blocks analysis calls whose key contains substr until release is called.
func (f *fakeProvider) hold(substr string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.blocks[substr] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// block holds analysis calls whose key contains substr until the test ends.
func (f *fakeProvider) block(t *testing.T, substr string) {
	t.Cleanup(f.hold(substr))
}

func (f *fakeProvider) Analyze(_ context.Context, tier llm.ModelTier, prompt string, parts ...llm.Part) (string, error) {
	f.analyzeCalls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}

	key := prompt
	if len(parts) > 0 {
		key = string(parts[0].Data) + parts[0].URI
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.parts = append(f.parts, parts...)
	var wait chan struct{}
	for substr, ch := range f.blocks {
		if strings.Contains(key, substr) {
			wait = ch
		}
	}
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for substr, remaining := range f.failAnalyze {
		if !strings.Contains(key, substr) || remaining == 0 {
			continue
		}
		if remaining > 0 {
			f.failAnalyze[substr] = remaining - 1
		}
		return "", errQuota
	}

	if tier == llm.TierSynthesis {
		return "synthesized summary", nil
	}
	return "summary of " + key, nil
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.embedCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for substr := range f.failEmbed {
		if strings.Contains(text, substr) {
			return nil, errors.New("embedding service unavailable")
		}
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeProvider) promptsContaining(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.prompts {
		if strings.Contains(p, substr) {
			out = append(out, p)
		}
	}
	return out
}

// fakeFetch returns the URL itself as the media bytes.
func fakeFetch(_ context.Context, url string) (*fetch.Result, error) {
	if strings.Contains(url, "broken") {
		return nil, &fetch.Error{URL: url, Message: "HTTP status 404"}
	}
	return &fetch.Result{URL: url, Data: []byte(url), ContentType: "image/jpeg", StatusCode: 200}, nil
}

func testConfig() Config {
	return Config{
		MediaWaitTimeout:    5 * time.Second,
		ProjectWaitTimeout:  5 * time.Second,
		CompletionThreshold: 0.70,
		MediaRetries:        1,
		SettleDelay:         0,
		SlotTimeout:         5 * time.Second,
	}
}

type harness struct {
	store    *memstore.Store
	provider *fakeProvider
	limiter  *admission.Limiter
	tracker  *jobs.Tracker
	service  *Service

	mu     sync.Mutex
	events []types.AnalysisJob
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		provider: newFakeProvider(),
		limiter:  admission.NewLimiter(admission.DefaultConfig()),
	}
	logger := logging.Discard()
	h.tracker = jobs.NewTracker(h.store, logger)
	h.service = NewService(h.store, h.tracker, h.provider, h.limiter, cfg, ServiceOptions{
		Fetcher:    fakeFetch,
		OnProgress: h.record,
		Logger:     logger,
	})
	return h
}

func (h *harness) record(job *types.AnalysisJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, *job)
}

func (h *harness) recorded() []types.AnalysisJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.AnalysisJob(nil), h.events...)
}

func (h *harness) addPortfolio(role, bio string) types.Portfolio {
	creator := h.store.AddCreator(types.Creator{Name: "Ada", Role: role, Bio: bio})
	return h.store.AddPortfolio(types.Portfolio{CreatorID: creator.ID, Title: "Work"})
}

func (h *harness) addProject(portfolio types.Portfolio, title string) types.Project {
	return h.store.AddProject(types.Project{PortfolioID: portfolio.ID, Title: title, Description: title + " description"})
}

// addImages adds n images whose URLs embed name so the fake provider can target them.
func (h *harness) addImages(project types.Project, name string, n int) []types.Media {
	media := make([]types.Media, 0, n)
	for i := 0; i < n; i++ {
		media = append(media, h.store.AddMedia(types.Media{
			ProjectID: project.ID,
			Kind:      types.ClassImage,
			URL:       fmt.Sprintf("https://cdn.example.com/%s-%d.jpg", name, i),
		}))
	}
	return media
}

func (h *harness) newJob(t *testing.T, target types.JobTarget) *types.AnalysisJob {
	t.Helper()
	job, err := h.tracker.Create(context.Background(), target)
	require.NoError(t, err)
	return job
}

