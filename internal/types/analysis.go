// Package types defines the core data structures shared by the analysis pipeline,
// the store, and the HTTP layer.
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// EmbeddingDimensions is the fixed length of every embedding vector.
const EmbeddingDimensions = 768

// AnalysisStatus is the lifecycle state of an analyzable entity.
type AnalysisStatus string

// AnalysisStatus values
const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisSuccess    AnalysisStatus = "success"
	AnalysisFailed     AnalysisStatus = "failed"
)

// IsTerminal reports whether the status is success or failed.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisSuccess || s == AnalysisFailed
}

// EntityKind identifies which level of the hierarchy a record belongs to.
type EntityKind string

// EntityKind values
const (
	EntityMedia     EntityKind = "media"
	EntityProject   EntityKind = "project"
	EntityPortfolio EntityKind = "portfolio"
)

// Analysis holds the analysis fields common to media, projects and portfolios.
// Summary and Embedding are both set or both nil.
type Analysis struct {
	Status    AnalysisStatus `json:"analysis_status"`
	Summary   *string        `json:"summary,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	Error     *string        `json:"analysis_error,omitempty"`
}

// IsAnalyzed reports whether both a summary and an embedding are present.
func (a Analysis) IsAnalyzed() bool {
	return a.Summary != nil && *a.Summary != "" && len(a.Embedding) > 0
}

// SummaryText returns the summary or an empty string.
func (a Analysis) SummaryText() string {
	if a.Summary == nil {
		return ""
	}
	return *a.Summary
}

// Creator is the owner of a portfolio. Role and bio feed portfolio synthesis.
type Creator struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
	Bio  string    `json:"bio"`
}

// Project is a titled group of media inside a portfolio.
type Project struct {
	ID          uuid.UUID `json:"id"`
	PortfolioID uuid.UUID `json:"portfolio_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Analysis
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Portfolio is a creator's collection of projects.
type Portfolio struct {
	ID        uuid.UUID `json:"id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Title     string    `json:"title"`
	Analysis
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
