package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-analyzer/internal/logging"
	"github.com/jonathan/portfolio-analyzer/internal/memstore"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

type fakeCache struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]types.AnalysisJob
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{jobs: make(map[uuid.UUID]types.AnalysisJob)}
}

func (c *fakeCache) Set(_ context.Context, job *types.AnalysisJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[job.ID] = *job
	return nil
}

func (c *fakeCache) Get(_ context.Context, id uuid.UUID) (*types.AnalysisJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("connection refused")
	}
	job, ok := c.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func newTestTracker(opts ...Option) *Tracker {
	return NewTracker(memstore.New(), logging.Discard(), opts...)
}

func portfolioTarget() types.JobTarget {
	return types.JobTarget{Kind: types.EntityPortfolio, ID: uuid.New()}
}

func TestCreate(t *testing.T) {
	tracker := newTestTracker()

	job, err := tracker.Create(context.Background(), portfolioTarget())
	require.NoError(t, err)
	assert.Equal(t, types.JobPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.NotEqual(t, uuid.Nil, job.ID)
}

func TestUpdate_ProgressNeverDecreases(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)

	sequence := []int{10, 40, 25, 40, 60, 5, 99}
	last := 0
	for _, p := range sequence {
		updated, err := tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobProcessing, Progress: Ptr(p)})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, updated.Progress, last)
		last = updated.Progress
	}
	assert.Equal(t, 99, last)
}

func TestUpdate_ProgressReaches100OnlyOnCompletion(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)

	updated, err := tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobProcessing, Progress: Ptr(100)})
	require.NoError(t, err)
	assert.Equal(t, 99, updated.Progress)
	assert.Nil(t, updated.CompletedAt)

	updated, err = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobCompleted, Message: Ptr("done")})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, "done", updated.Message())
	assert.NotNil(t, updated.CompletedAt)
}

func TestUpdate_StateMachine(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)

	_, err = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobCompleted})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobProcessing})
	require.NoError(t, err)

	_, err = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobFailed, Message: Ptr("no projects were successfully analyzed")})
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, failed.Status)

	_, err = tracker.Update(ctx, job.ID, JobUpdate{Progress: Ptr(50)})
	assert.ErrorIs(t, err, ErrJobTerminal)
}

func TestUpdate_MessageOnlyKeepsStatusAndProgress(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)

	_, err = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobProcessing, Progress: Ptr(40)})
	require.NoError(t, err)

	updated, err := tracker.Update(ctx, job.ID, JobUpdate{Message: Ptr("3 of 5 projects analyzed")})
	require.NoError(t, err)
	assert.Equal(t, types.JobProcessing, updated.Status)
	assert.Equal(t, 40, updated.Progress)
	assert.Equal(t, "3 of 5 projects analyzed", updated.Message())
}

func TestUpdate_ConcurrentUpdatesStayMonotonic(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, _ = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobProcessing, Progress: Ptr(p)})
		}(i)
	}
	wg.Wait()

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
}

func TestUpdate_MissingJob(t *testing.T) {
	tracker := newTestTracker()
	_, err := tracker.Update(context.Background(), uuid.New(), JobUpdate{Progress: Ptr(1)})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGet_PrefersCache(t *testing.T) {
	cache := newFakeCache()
	tracker := newTestTracker(WithCache(cache))
	ctx := context.Background()

	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)

	cached, err := cache.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, types.JobPending, cached.Status)

	_, err = tracker.Update(ctx, job.ID, JobUpdate{Status: types.JobProcessing, Progress: Ptr(30)})
	require.NoError(t, err)

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Progress)
}

func TestGet_FallsBackWhenCacheFails(t *testing.T) {
	cache := newFakeCache()
	tracker := newTestTracker(WithCache(cache))
	ctx := context.Background()

	job, err := tracker.Create(ctx, portfolioTarget())
	require.NoError(t, err)
	cache.failGet = true

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestProgress(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 6, 0},
		{1, 6, 16},
		{3, 6, 50},
		{5, 6, 83},
		{6, 6, 100},
		{7, 6, 100},
		{1, 0, 0},
		{-1, 4, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Progress(tt.completed, tt.total), "Progress(%d, %d)", tt.completed, tt.total)
	}
}

func TestStatusKey(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "job:550e8400-e29b-41d4-a716-446655440000:status", StatusKey(id))
}
