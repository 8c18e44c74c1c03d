package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/portfolio-analyzer/internal/analysis"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// handleJobEvents streams a job's status as "progress" events until it
// reaches a terminal status, which is sent as a "complete" event.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "job ID")
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	// Unknown jobs get a plain 404 before the stream starts
	status, err := s.analyzer.GetJobStatus(r.Context(), jobID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), errorMessage(err))
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var last analysis.JobStatus
	for {
		if status.Status.IsTerminal() {
			sse.WriteEvent("complete", status) //nolint:errcheck
			return
		}
		if *status != last {
			if err := sse.WriteEvent("progress", status); err != nil {
				return
			}
			last = *status
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		status, err = s.analyzer.GetJobStatus(r.Context(), jobID)
		if err != nil {
			sse.WriteError(errorMessage(err))
			return
		}
	}
}
