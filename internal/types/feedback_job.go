// Package types provides type definitions for structured data used throughout the doc-feedback system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a feedback job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	// JobStatusCancelled is reserved; nothing in the pipeline emits it.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status is COMPLETED or FAILED
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// StepStatus is the sub-status of one pipeline stage
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// TotalSteps is the number of stages tracked in StepDetails
const TotalSteps = 4

// StepDetails tracks the first four stages independently of the overall status.
// Change confirmation has no entry because it can never fail a job.
type StepDetails struct {
	DocumentAccess     StepStatus `json:"documentAccess"`
	ContentAnalysis    StepStatus `json:"contentAnalysis"`
	FeedbackGeneration StepStatus `json:"feedbackGeneration"`
	DocumentUpdate     StepStatus `json:"documentUpdate"`
}

// NewStepDetails returns step details with every stage pending
func NewStepDetails() StepDetails {
	return StepDetails{
		DocumentAccess:     StepPending,
		ContentAnalysis:    StepPending,
		FeedbackGeneration: StepPending,
		DocumentUpdate:     StepPending,
	}
}

// Ordered returns the step statuses in pipeline order
func (d StepDetails) Ordered() []StepStatus {
	return []StepStatus{d.DocumentAccess, d.ContentAnalysis, d.FeedbackGeneration, d.DocumentUpdate}
}

// Validate rejects unknown step values and completed steps whose predecessor is not completed
func (d StepDetails) Validate() error {
	steps := d.Ordered()
	for i, s := range steps {
		switch s {
		case StepPending, StepCompleted, StepFailed:
		default:
			return fmt.Errorf("invalid step status %q at position %d", s, i)
		}
		if i > 0 && s == StepCompleted && steps[i-1] != StepCompleted {
			return fmt.Errorf("step %d completed before step %d", i, i-1)
		}
	}
	return nil
}

// Set updates the status of the step at index (0-based, pipeline order).
// Indexes outside the four tracked steps are ignored.
func (d *StepDetails) Set(index int, status StepStatus) {
	switch index {
	case 0:
		d.DocumentAccess = status
	case 1:
		d.ContentAnalysis = status
	case 2:
		d.FeedbackGeneration = status
	case 3:
		d.DocumentUpdate = status
	}
}

// FirstIncomplete returns the index of the first step that is not completed, or -1
func (d StepDetails) FirstIncomplete() int {
	for i, s := range d.Ordered() {
		if s != StepCompleted {
			return i
		}
	}
	return -1
}

// FeedbackJob is one user request to annotate a document with generated feedback
type FeedbackJob struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	DocumentID  string    `json:"document_id"`
	DocumentURL string    `json:"document_url"`
	Genre       string    `json:"genre"`

	Status      JobStatus   `json:"status"`
	Progress    int         `json:"progress"`
	CurrentStep *string     `json:"current_step,omitempty"`
	TotalSteps  int         `json:"total_steps"`
	StepDetails StepDetails `json:"step_details"`
	Error       *string     `json:"error,omitempty"`

	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	EstimatedTotalMinutes int        `json:"estimated_total_time"`

	CommentsAdded       int     `json:"comments_added"`
	InitialCommentCount int     `json:"initial_comment_count"`
	InitialRevision     *string `json:"initial_revision,omitempty"`
	FinalRevision       *string `json:"final_revision,omitempty"`

	// Attempt increments every time a runner takes the job to PROCESSING
	Attempt int `json:"attempt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFeedbackJob builds a PENDING job for the given request
func NewFeedbackJob(userID uuid.UUID, documentID, documentURL string, genre Genre, now time.Time) *FeedbackJob {
	return &FeedbackJob{
		ID:                    uuid.New(),
		UserID:                userID,
		DocumentID:            documentID,
		DocumentURL:           documentURL,
		Genre:                 genre.Name,
		Status:                JobStatusPending,
		TotalSteps:            TotalSteps,
		StepDetails:           NewStepDetails(),
		StartedAt:             now,
		EstimatedTotalMinutes: genre.EstimatedMinutes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// ResetForRetry puts a job back into the state it had at submission, keeping its identity
func (j *FeedbackJob) ResetForRetry(now time.Time) {
	j.Status = JobStatusPending
	j.Progress = 0
	j.CurrentStep = nil
	j.StepDetails = NewStepDetails()
	j.Error = nil
	j.CompletedAt = nil
	j.StartedAt = now
	j.CommentsAdded = 0
	j.InitialCommentCount = 0
	j.InitialRevision = nil
	j.FinalRevision = nil
	j.UpdatedAt = now
}

// Clone returns a deep copy of the job
func (j *FeedbackJob) Clone() *FeedbackJob {
	c := *j
	c.CurrentStep = cloneString(j.CurrentStep)
	c.Error = cloneString(j.Error)
	c.InitialRevision = cloneString(j.InitialRevision)
	c.FinalRevision = cloneString(j.FinalRevision)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// Precondition guards a job write: the stored row must still have this status, attempt and progress.
// Every write changes at least one of them, so a writer holding a stale snapshot fails the check.
// A runner that lost its job to a retry or a timeout has its write dropped.
type Precondition struct {
	Status   JobStatus
	Attempt  int
	Progress int
}

// PreconditionOf captures the current status, attempt and progress of job
func PreconditionOf(job *FeedbackJob) Precondition {
	return Precondition{Status: job.Status, Attempt: job.Attempt, Progress: job.Progress}
}

// Matches reports whether job is the version pre was taken from
func (pre Precondition) Matches(job *FeedbackJob) bool {
	return job.Status == pre.Status && job.Attempt == pre.Attempt && job.Progress == pre.Progress
}
