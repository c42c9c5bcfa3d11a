package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/doc-feedback/internal/pipeline/pipelinetest"
	"github.com/jonathan/doc-feedback/internal/types"
)

func failedJob(t *testing.T, store *pipelinetest.MemoryStore) *types.FeedbackJob {
	t.Helper()
	job := seedJob(t, store)
	job.Status = types.JobStatusProcessing
	job.Attempt = 1
	job.Progress = 25
	job.StepDetails.DocumentAccess = types.StepCompleted
	job.InitialRevision = types.StringPtr("rev-1")
	markFailed(job, 1, "Content analysis failed: document doc-1 is empty", "Failed: Content analysis", time.Now())
	store.Put(job)
	return job
}

func TestRetry_ResetsFailedJob(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	sched := &pipelinetest.FakeScheduler{}
	ctrl := NewRetryController(store, sched)
	job := failedJob(t, store)

	got, err := ctrl.Retry(context.Background(), job.ID, job.UserID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, types.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.CurrentStep)
	assert.Nil(t, got.InitialRevision)
	assert.Equal(t, types.NewStepDetails(), got.StepDetails)
	assert.Equal(t, 1, got.Attempt)

	stored := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusPending, stored.Status)
	assert.Equal(t, []uuid.UUID{job.ID}, sched.Scheduled())
}

func TestRetry_RejectsNonFailedJobs(t *testing.T) {
	for _, status := range []types.JobStatus{types.JobStatusPending, types.JobStatusProcessing, types.JobStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			store := pipelinetest.NewMemoryStore()
			sched := &pipelinetest.FakeScheduler{}
			job := seedJob(t, store)
			job.Status = status
			if status == types.JobStatusCompleted {
				now := time.Now()
				job.Progress = 100
				job.CompletedAt = &now
			}
			store.Put(job)
			before := loadJob(t, store, job.ID)

			_, err := NewRetryController(store, sched).Retry(context.Background(), job.ID, job.UserID)
			assert.ErrorIs(t, err, ErrInvalidState)
			assert.Equal(t, before, loadJob(t, store, job.ID))
			assert.Empty(t, sched.Scheduled())
		})
	}
}

func TestRetry_RejectsOtherUser(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	sched := &pipelinetest.FakeScheduler{}
	job := failedJob(t, store)

	_, err := NewRetryController(store, sched).Retry(context.Background(), job.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, types.JobStatusFailed, loadJob(t, store, job.ID).Status)
	assert.Empty(t, sched.Scheduled())
}

func TestRetry_NotFound(t *testing.T) {
	_, err := NewRetryController(pipelinetest.NewMemoryStore(), &pipelinetest.FakeScheduler{}).
		Retry(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRetry_StoreError(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	job := failedJob(t, store)
	store.UpdateErr = errors.New("connection refused")
	sched := &pipelinetest.FakeScheduler{}

	_, err := NewRetryController(store, sched).Retry(context.Background(), job.ID, job.UserID)
	assert.Error(t, err)
	assert.Empty(t, sched.Scheduled())
}

func TestRetry_FailedJobCompletesOnSecondAttempt(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	var calls atomic.Int32
	docs := &pipelinetest.FakeDocs{
		Doc: pipelinetest.WorksheetDocument(),
		FetchHook: func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("document doc-1 not found: grant edit access to sa@example.com")
			}
			return nil
		},
	}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())
	sched := NewScheduler(context.Background(), runner, store, time.Minute)

	job := seedJob(t, store)
	sched.Schedule(job.ID)
	sched.Wait()
	require.Equal(t, types.JobStatusFailed, loadJob(t, store, job.ID).Status)

	retried, err := NewRetryController(store, sched).Retry(context.Background(), job.ID, job.UserID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, retried.Status)
	sched.Wait()

	got := loadJob(t, store, job.ID)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, types.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Attempt)
	assert.Nil(t, got.Error)
	assertHistoryInvariants(t, store.History(job.ID))
}
