package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/types"
)

// RetryController resets failed jobs and schedules them again under the same id
type RetryController struct {
	store     JobStore
	scheduler JobScheduler
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewRetryController creates a retry controller
func NewRetryController(store JobStore, scheduler JobScheduler) *RetryController {
	return &RetryController{
		store:     store,
		scheduler: scheduler,
		now:       time.Now,
		log:       zap.S().Named("retry"),
	}
}

// Retry resets a FAILED job owned by requesterID to PENDING and schedules it.
// Rejected requests never modify the job.
func (c *RetryController) Retry(ctx context.Context, jobID, requesterID uuid.UUID) (*types.FeedbackJob, error) {
	job, err := c.store.GetFeedbackJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.UserID != requesterID {
		return nil, ErrForbidden
	}
	if job.Status != types.JobStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, job.Status)
	}

	pre := types.PreconditionOf(job)
	job.ResetForRetry(c.now())
	ok, err := c.store.UpdateFeedbackJob(ctx, job, pre)
	if err != nil {
		return nil, fmt.Errorf("failed to reset job %s: %w", jobID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job changed concurrently", ErrInvalidState)
	}

	c.log.Infow("job reset for retry", "job_id", jobID, "previous_attempt", job.Attempt)
	c.scheduler.Schedule(job.ID)
	return job, nil
}
