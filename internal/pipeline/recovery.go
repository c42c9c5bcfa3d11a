package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/doc-feedback/internal/types"
)

const restartMessage = "interrupted by server restart"

// RecoveryReport summarises startup recovery
type RecoveryReport struct {
	Failed      int
	Rescheduled int
}

// Recover repairs jobs left behind by a previous process. PROCESSING jobs lost their
// runner and are marked FAILED so their owners can retry them. PENDING jobs never
// started and are scheduled again. It assumes a single serving process.
func (s *Scheduler) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	jobs, err := s.store.ListFeedbackJobsByStatus(ctx, types.JobStatusProcessing, types.JobStatusPending)
	if err != nil {
		return report, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		if job.Status == types.JobStatusPending {
			s.Schedule(job.ID)
			report.Rescheduled++
			continue
		}

		pre := types.PreconditionOf(job)
		markFailed(job, job.StepDetails.FirstIncomplete(), restartMessage, labelInterrupted, s.now())
		ok, err := s.store.UpdateFeedbackJob(ctx, job, pre)
		if err != nil {
			return report, fmt.Errorf("failed to fail interrupted job %s: %w", job.ID, err)
		}
		if ok {
			report.Failed++
		}
	}

	if report.Failed > 0 || report.Rescheduled > 0 {
		s.log.Infow("recovered unfinished jobs", "failed", report.Failed, "rescheduled", report.Rescheduled)
	}
	return report, nil
}
