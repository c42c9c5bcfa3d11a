package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/doc-feedback/internal/pipeline"
	"github.com/jonathan/doc-feedback/internal/server/middleware"
	"github.com/jonathan/doc-feedback/internal/types"
)

const maxListLimit = 100

// CreateFeedbackJobRequest is the body of POST /feedback/jobs
type CreateFeedbackJobRequest struct {
	Genre       string `json:"genre"`
	DocumentURL string `json:"documentUrl"`
}

// JobAcceptedResponse is returned when a job is created or retried
type JobAcceptedResponse struct {
	JobID              uuid.UUID       `json:"jobId"`
	Status             types.JobStatus `json:"status"`
	Progress           int             `json:"progress"`
	EstimatedTotalTime int             `json:"estimatedTotalTime"`
}

// ListFeedbackJobsResponse is returned by GET /feedback/jobs
type ListFeedbackJobsResponse struct {
	Jobs  []pipeline.JobView `json:"jobs"`
	Count int                `json:"count"`
}

func accepted(job *types.FeedbackJob) JobAcceptedResponse {
	return JobAcceptedResponse{
		JobID:              job.ID,
		Status:             job.Status,
		Progress:           job.Progress,
		EstimatedTotalTime: job.EstimatedTotalMinutes,
	}
}

// handleCreateFeedbackJob starts a job for the caller's document
func (s *Server) handleCreateFeedbackJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateFeedbackJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, r, &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}

	job, err := s.jobs.Create(r.Context(), pipeline.CreateJobInput{
		UserID:      userID,
		Genre:       req.Genre,
		DocumentURL: req.DocumentURL,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Location", "/feedback/jobs/"+job.ID.String())
	s.jsonResponse(w, http.StatusAccepted, accepted(job))
}

// handleListFeedbackJobs lists the caller's jobs, newest first
func (s *Server) handleListFeedbackJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.handleError(w, r, &ErrValidation{Field: "limit", Message: "must be between 1 and 100"})
			return
		}
		limit = n
	}

	views, err := s.jobs.ListForUser(r.Context(), userID, limit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ListFeedbackJobsResponse{Jobs: views, Count: len(views)})
}

// handleGetFeedbackJob returns the status view of one job
func (s *Server) handleGetFeedbackJob(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := s.requireUserAndJob(w, r)
	if !ok {
		return
	}

	view, err := s.jobs.StatusFor(r.Context(), jobID, userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// handleRetryFeedbackJob restarts a failed job
func (s *Server) handleRetryFeedbackJob(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := s.requireUserAndJob(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.Retry(r.Context(), jobID, userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, accepted(job))
}

// handleFeedbackJobEvents streams the job view until the job is terminal or the client leaves.
// Errors before the first event are plain HTTP errors.
func (s *Server) handleFeedbackJobEvents(w http.ResponseWriter, r *http.Request) {
	userID, jobID, ok := s.requireUserAndJob(w, r)
	if !ok {
		return
	}

	view, err := s.jobs.StatusFor(r.Context(), jobID, userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	stream, err := newEventStream(w, s.eventInterval)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.eventInterval)
	defer ticker.Stop()

	lastProgress, lastStatus := -1, types.JobStatus("")
	for {
		if view.Progress != lastProgress || view.Status != lastStatus {
			if err := stream.send("status", view); err != nil {
				return
			}
			lastProgress, lastStatus = view.Progress, view.Status
		}
		if view.Status.IsTerminal() {
			_ = stream.send("complete", view)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		view, err = s.jobs.StatusFor(r.Context(), jobID, userID)
		if err != nil {
			if r.Context().Err() == nil {
				s.log.Warnw("event stream status read failed", "job_id", jobID, "error", err)
				stream.fail(errorMessage(err, HTTPStatus(err)))
			}
			return
		}
	}
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

func (s *Server) requireUserAndJob(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.handleError(w, r, &ErrValidation{Field: "id", Message: "invalid job ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, jobID, true
}

