package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// StartResponse is returned when an analysis job is accepted.
type StartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// handleStartPortfolioAnalysis starts a background analysis of a portfolio.
func (s *Server) handleStartPortfolioAnalysis(w http.ResponseWriter, r *http.Request) {
	s.startAnalysis(w, r, "portfolio", s.analyzer.StartPortfolioAnalysis)
}

// handleStartProjectAnalysis starts a background analysis of a single project.
func (s *Server) handleStartProjectAnalysis(w http.ResponseWriter, r *http.Request) {
	s.startAnalysis(w, r, "project", s.analyzer.StartProjectAnalysis)
}

func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request, kind string, start func(context.Context, uuid.UUID) (uuid.UUID, error)) {
	id, err := pathID(r, kind+" ID")
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	jobID, err := start(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to start analysis", "kind", kind, "id", id, "error", err)
		s.errorResponse(w, HTTPStatus(err), errorMessage(err))
		return
	}

	w.Header().Set("Location", "/jobs/"+jobID.String())
	s.jsonResponse(w, http.StatusAccepted, StartResponse{
		JobID:  jobID.String(),
		Status: "pending",
	})
}

// handleJobStatus returns the status, progress and message of a job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "job ID")
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	status, err := s.analyzer.GetJobStatus(r.Context(), jobID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), errorMessage(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, status)
}

// pathID parses the {id} path value as a UUID.
func pathID(r *http.Request, what string) (uuid.UUID, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return uuid.Nil, &ErrValidation{Field: "id", Message: what + " is required"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "invalid " + what + " format"}
	}
	return id, nil
}
