package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/observability"
	"github.com/jonathan/doc-feedback/internal/types"
)

const (
	// DefaultJobTimeout bounds a whole run
	DefaultJobTimeout = 15 * time.Minute

	// claimTimeout bounds the PENDING to PROCESSING write that precedes the timed run
	claimTimeout = 30 * time.Second
	// settleTimeout bounds one try of the scheduler's own failure write
	settleTimeout = 10 * time.Second
	// settleGrace bounds all tries of the failure write. A job still PROCESSING after it is
	// failed by startup recovery.
	settleGrace     = time.Minute
	settleBaseDelay = 100 * time.Millisecond
	settleMaxDelay  = 5 * time.Second

	shutdownMessage = "interrupted by server shutdown"
)

// errJobChanged means the job was written between the read and the failure write
var errJobChanged = errors.New("job changed during failure write")

func defaultSettleBackoff() retry.Backoff {
	b := retry.NewExponential(settleBaseDelay)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(settleMaxDelay, b)
	return retry.WithMaxDuration(settleGrace, b)
}

// Scheduler runs jobs in the background and guarantees each run ends in a terminal state.
//
// Every run races the runner against a timer and against shutdown of the base context.
// Cancellation is cooperative: a document or model call that ignores its context keeps its
// goroutine alive after the timeout. Writes from such a goroutine fail the store precondition
// and are dropped.
type Scheduler struct {
	runner  *Runner
	store   JobStore
	timeout time.Duration
	base    context.Context
	now     func() time.Time
	log     *zap.SugaredLogger
	wg      sync.WaitGroup

	// settleBackoff returns a fresh schedule for each failure write
	settleBackoff func() retry.Backoff
}

// NewScheduler creates a scheduler. Cancelling base interrupts every in-flight run.
func NewScheduler(base context.Context, runner *Runner, store JobStore, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Scheduler{
		runner:  runner,
		store:   store,
		timeout: timeout,
		base:    base,
		now:     time.Now,
		log:     zap.S().Named("scheduler"),

		settleBackoff: defaultSettleBackoff,
	}
}

// Schedule starts the job without blocking. Only PENDING jobs are run.
func (s *Scheduler) Schedule(jobID uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(jobID)
	}()
}

// Wait blocks until every scheduled run has settled. A run whose failure write keeps failing
// settles after the retry grace period.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) supervise(jobID uuid.UUID) {
	log := s.log.With("job_id", jobID)

	claimCtx, cancelClaim := context.WithTimeout(s.base, claimTimeout)
	run, err := s.runner.claim(claimCtx, jobID)
	cancelClaim()
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotRunnable) {
			log.Warnw("job not started", "error", err)
		} else {
			log.Errorw("failed to start job", "error", err)
		}
		return
	}
	attempt := run.job.Attempt

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("runner panic: %v", p)
			}
		}()
		done <- s.runner.execute(ctx, run)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err == nil {
			return
		}
		if errors.Is(err, ErrJobSuperseded) {
			log.Infow("run superseded", "attempt", attempt)
			return
		}
		if s.base.Err() != nil {
			s.failRun(jobID, attempt, shutdownMessage, labelInterrupted)
			return
		}
		label := "Failed"
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			label = fmt.Sprintf(failedLabelFmt, stageErr.Stage.Label())
		}
		s.failRun(jobID, attempt, err.Error(), label)
	case <-timer.C:
		cancel()
		observability.IncreaseSchedulerTimeouts()
		err := fmt.Errorf("%w after %s", ErrPipelineTimeout, s.timeout)
		log.Warnw("job timed out", "attempt", attempt, "timeout", s.timeout)
		s.failRun(jobID, attempt, err.Error(), labelTimedOut)
	case <-s.base.Done():
		s.failRun(jobID, attempt, shutdownMessage, labelInterrupted)
	}
}

// failRun marks the job FAILED if it is still PROCESSING under the given attempt.
// A job the runner already finished, or one that was retried since, is left alone.
// Store errors and concurrent writes are retried with backoff, re-reading the job each time.
func (s *Scheduler) failRun(jobID uuid.UUID, attempt int, message, label string) {
	log := s.log.With("job_id", jobID, "attempt", attempt)

	tries := 0
	err := retry.Do(context.Background(), s.settleBackoff(), func(ctx context.Context) error {
		tries++
		written, err := s.writeFailure(ctx, jobID, attempt, message, label)
		if err != nil {
			log.Warnw("failure write did not land", "try", tries, "error", err)
			return retry.RetryableError(err)
		}
		if written {
			observability.IncreaseJobsTotal(string(types.JobStatusFailed))
			log.Infow("job marked failed", "error", message)
		}
		return nil
	})
	if err != nil {
		log.Errorw("gave up marking job failed", "tries", tries, "error", err)
	}
}

// writeFailure reports whether it wrote. It returns false, nil when the job no longer needs it.
func (s *Scheduler) writeFailure(parent context.Context, jobID uuid.UUID, attempt int, message, label string) (bool, error) {
	ctx, cancel := context.WithTimeout(parent, settleTimeout)
	defer cancel()

	job, err := s.store.GetFeedbackJob(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil || job.Status != types.JobStatusProcessing || job.Attempt != attempt {
		return false, nil
	}

	pre := types.PreconditionOf(job)
	markFailed(job, job.StepDetails.FirstIncomplete(), message, label, s.now())
	ok, err := s.store.UpdateFeedbackJob(ctx, job, pre)
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	if !ok {
		return false, errJobChanged
	}
	return true, nil
}
