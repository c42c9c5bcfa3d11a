package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/doc-feedback/internal/types"
)

// JobView is the client-facing status of a job
type JobView struct {
	JobID                  uuid.UUID         `json:"jobId"`
	Status                 types.JobStatus   `json:"status"`
	Progress               int               `json:"progress"`
	CurrentStep            *string           `json:"currentStep"`
	TotalSteps             int               `json:"totalSteps"`
	StepDetails            types.StepDetails `json:"stepDetails"`
	Error                  *string           `json:"error"`
	StartedAt              time.Time         `json:"startedAt"`
	CompletedAt            *time.Time        `json:"completedAt"`
	EstimatedTotalTime     int               `json:"estimatedTotalTime"`
	EstimatedTimeRemaining int               `json:"estimatedTimeRemaining"`
	CommentsAdded          int               `json:"commentsAdded"`
	DocumentURL            string            `json:"documentUrl"`
	Genre                  string            `json:"genre"`
	Attempt                int               `json:"attempt"`
	// Message is set only for COMPLETED jobs
	Message *string `json:"message"`
}

// StatusQuery builds read-only job views
type StatusQuery struct {
	store JobStore
	now   func() time.Time
}

// NewStatusQuery creates a status query over store
func NewStatusQuery(store JobStore) *StatusQuery {
	return &StatusQuery{store: store, now: time.Now}
}

// GetStatus returns the view of a job or ErrJobNotFound
func (q *StatusQuery) GetStatus(ctx context.Context, jobID uuid.UUID) (*JobView, error) {
	job, err := q.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return NewJobView(job, q.now()), nil
}

func (q *StatusQuery) load(ctx context.Context, jobID uuid.UUID) (*types.FeedbackJob, error) {
	job, err := q.store.GetFeedbackJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// NewJobView projects a job into its client view as of now
func NewJobView(job *types.FeedbackJob, now time.Time) *JobView {
	view := &JobView{
		JobID:                  job.ID,
		Status:                 job.Status,
		Progress:               job.Progress,
		CurrentStep:            job.CurrentStep,
		TotalSteps:             job.TotalSteps,
		StepDetails:            job.StepDetails,
		Error:                  job.Error,
		StartedAt:              job.StartedAt,
		CompletedAt:            job.CompletedAt,
		EstimatedTotalTime:     job.EstimatedTotalMinutes,
		EstimatedTimeRemaining: EstimateRemaining(job, now),
		CommentsAdded:          job.CommentsAdded,
		DocumentURL:            job.DocumentURL,
		Genre:                  job.Genre,
		Attempt:                job.Attempt,
	}
	if job.Status == types.JobStatusCompleted {
		view.Message = types.StringPtr(successMessage(job.CommentsAdded))
	}
	return view
}

// EstimateRemaining returns whole minutes left: the smaller of the time-based and
// progress-based estimates, rounded up and floored at zero. Terminal jobs have none left.
func EstimateRemaining(job *types.FeedbackJob, now time.Time) int {
	if job.Status.IsTerminal() {
		return 0
	}

	total := float64(job.EstimatedTotalMinutes)
	elapsed := now.Sub(job.StartedAt).Minutes()
	byTime := total - elapsed
	byProgress := total * float64(100-job.Progress) / 100

	remaining := math.Min(byTime, byProgress)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining))
}

func successMessage(commentsAdded int) string {
	if commentsAdded == 0 {
		return "피드백 작성이 완료되었습니다. 문서를 확인해 보세요."
	}
	return fmt.Sprintf("문서에 피드백 %d개가 추가되었습니다. 문서를 확인해 보세요.", commentsAdded)
}
