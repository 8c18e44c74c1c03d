// Package memstore is an in-process implementation of the analysis and job
// stores. It applies the same write guards as the Postgres store and is used
// by tests and local dry runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// Store holds every record in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	creators   map[uuid.UUID]types.Creator
	portfolios map[uuid.UUID]*types.Portfolio
	projects   map[uuid.UUID]*types.Project
	media      map[uuid.UUID]*types.Media
	jobs       map[uuid.UUID]*types.AnalysisJob
	order      map[uuid.UUID]int
	seq        int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		creators:   make(map[uuid.UUID]types.Creator),
		portfolios: make(map[uuid.UUID]*types.Portfolio),
		projects:   make(map[uuid.UUID]*types.Project),
		media:      make(map[uuid.UUID]*types.Media),
		jobs:       make(map[uuid.UUID]*types.AnalysisJob),
		order:      make(map[uuid.UUID]int),
	}
}

func (s *Store) touch(id uuid.UUID) {
	if _, ok := s.order[id]; !ok {
		s.seq++
		s.order[id] = s.seq
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func withDefaults(a *types.Analysis) {
	if a.Status == "" {
		a.Status = types.AnalysisPending
	}
}

// AddCreator stores a creator.
func (s *Store) AddCreator(c types.Creator) types.Creator {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&c.ID)
	s.creators[c.ID] = c
	return c
}

// AddPortfolio stores a portfolio.
func (s *Store) AddPortfolio(p types.Portfolio) types.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&p.ID)
	withDefaults(&p.Analysis)
	s.portfolios[p.ID] = &p
	s.touch(p.ID)
	return p
}

// AddProject stores a project.
func (s *Store) AddProject(p types.Project) types.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&p.ID)
	withDefaults(&p.Analysis)
	s.projects[p.ID] = &p
	s.touch(p.ID)
	return p
}

// AddMedia stores a media item.
func (s *Store) AddMedia(m types.Media) types.Media {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&m.ID)
	withDefaults(&m.Analysis)
	s.media[m.ID] = &m
	s.touch(m.ID)
	return m
}

// GetCreator returns a creator by ID.
func (s *Store) GetCreator(_ context.Context, id uuid.UUID) (*types.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creators[id]
	if !ok {
		return nil, fmt.Errorf("creator %s: %w", id, types.ErrNotFound)
	}
	return &c, nil
}

// GetPortfolio returns a copy of a portfolio.
func (s *Store) GetPortfolio(_ context.Context, id uuid.UUID) (*types.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", id, types.ErrNotFound)
	}
	cp := *p
	cp.Analysis = copyAnalysis(p.Analysis)
	return &cp, nil
}

// GetProject returns a copy of a project.
func (s *Store) GetProject(_ context.Context, id uuid.UUID) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, types.ErrNotFound)
	}
	cp := *p
	cp.Analysis = copyAnalysis(p.Analysis)
	return &cp, nil
}

// ListProjectsByPortfolio returns a portfolio's projects in insertion order.
func (s *Store) ListProjectsByPortfolio(_ context.Context, portfolioID uuid.UUID) ([]types.Project, error) {
	return s.listProjects(portfolioID, false), nil
}

// ListAnalyzedProjects returns a portfolio's projects that have a summary and embedding.
func (s *Store) ListAnalyzedProjects(_ context.Context, portfolioID uuid.UUID) ([]types.Project, error) {
	return s.listProjects(portfolioID, true), nil
}

func (s *Store) listProjects(portfolioID uuid.UUID, analyzedOnly bool) []types.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Project
	for _, p := range s.projects {
		if p.PortfolioID != portfolioID {
			continue
		}
		if analyzedOnly && !p.IsAnalyzed() {
			continue
		}
		cp := *p
		cp.Analysis = copyAnalysis(p.Analysis)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out
}

// GetMedia returns a copy of a media item.
func (s *Store) GetMedia(_ context.Context, id uuid.UUID) (*types.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[id]
	if !ok {
		return nil, fmt.Errorf("media %s: %w", id, types.ErrNotFound)
	}
	cp := *m
	cp.Analysis = copyAnalysis(m.Analysis)
	return &cp, nil
}

// ListMediaByProject returns a project's media in insertion order.
func (s *Store) ListMediaByProject(_ context.Context, projectID uuid.UUID) ([]types.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Media
	for _, m := range s.media {
		if m.ProjectID != projectID {
			continue
		}
		cp := *m
		cp.Analysis = copyAnalysis(m.Analysis)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *Store) analysisFor(kind types.EntityKind, id uuid.UUID) (*types.Analysis, error) {
	switch kind {
	case types.EntityMedia:
		if m, ok := s.media[id]; ok {
			return &m.Analysis, nil
		}
	case types.EntityProject:
		if p, ok := s.projects[id]; ok {
			return &p.Analysis, nil
		}
	case types.EntityPortfolio:
		if p, ok := s.portfolios[id]; ok {
			return &p.Analysis, nil
		}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil, fmt.Errorf("%s %s: %w", kind, id, types.ErrNotFound)
}

// MarkProcessing moves an entity to processing unless it already succeeded.
func (s *Store) MarkProcessing(_ context.Context, kind types.EntityKind, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analysisFor(kind, id)
	if err != nil {
		return err
	}
	if a.Status == types.AnalysisSuccess {
		return nil
	}
	a.Status = types.AnalysisProcessing
	a.Error = nil
	return nil
}

// SaveAnalysis stores a summary and embedding and marks the entity successful.
func (s *Store) SaveAnalysis(_ context.Context, kind types.EntityKind, id uuid.UUID, summary string, embedding []float32) error {
	if summary == "" || len(embedding) == 0 {
		return fmt.Errorf("summary and embedding must both be set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analysisFor(kind, id)
	if err != nil {
		return err
	}
	a.Status = types.AnalysisSuccess
	a.Summary = &summary
	a.Embedding = append([]float32(nil), embedding...)
	a.Error = nil
	return nil
}

// FailAnalysis records a failure unless a summary already exists.
func (s *Store) FailAnalysis(_ context.Context, kind types.EntityKind, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analysisFor(kind, id)
	if err != nil {
		return err
	}
	if a.Summary != nil {
		return nil
	}
	a.Status = types.AnalysisFailed
	a.Error = &message
	return nil
}

// CreateJob stores a new job.
func (s *Store) CreateJob(_ context.Context, job *types.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// GetJob returns a copy of a job.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*types.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

// UpdateJob writes a job. Progress never decreases and terminal jobs are frozen.
func (s *Store) UpdateJob(_ context.Context, job *types.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok || current.Status.IsTerminal() {
		return fmt.Errorf("active job %s: %w", job.ID, types.ErrNotFound)
	}
	if job.Progress < current.Progress {
		job.Progress = current.Progress
	}
	job.UpdatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func copyAnalysis(a types.Analysis) types.Analysis {
	cp := a
	if a.Embedding != nil {
		cp.Embedding = append([]float32(nil), a.Embedding...)
	}
	return cp
}
