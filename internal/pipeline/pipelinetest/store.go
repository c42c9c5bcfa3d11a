// Package pipelinetest provides in-memory fakes for the pipeline's collaborators.
package pipelinetest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/doc-feedback/internal/types"
)

// MemoryStore is a JobStore that keeps jobs in memory and records every write.
// Like a database driver, it fails calls whose context is already done.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*types.FeedbackJob
	history map[uuid.UUID][]types.FeedbackJob

	// UpdateErr, when set, fails every update
	UpdateErr error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[uuid.UUID]*types.FeedbackJob),
		history: make(map[uuid.UUID][]types.FeedbackJob),
	}
}

func (s *MemoryStore) CreateFeedbackJob(ctx context.Context, job *types.FeedbackJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	s.history[job.ID] = append(s.history[job.ID], *job.Clone())
	return nil
}

func (s *MemoryStore) GetFeedbackJob(ctx context.Context, id uuid.UUID) (*types.FeedbackJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return job.Clone(), nil
}

func (s *MemoryStore) UpdateFeedbackJob(ctx context.Context, job *types.FeedbackJob, pre types.Precondition) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return false, s.UpdateErr
	}
	current, ok := s.jobs[job.ID]
	if !ok || !pre.Matches(current) {
		return false, nil
	}
	s.jobs[job.ID] = job.Clone()
	s.history[job.ID] = append(s.history[job.ID], *job.Clone())
	return true, nil
}

func (s *MemoryStore) ListFeedbackJobsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]types.FeedbackJob, error) {
	return s.list(ctx, limit, func(j *types.FeedbackJob) bool { return j.UserID == userID }, true)
}

func (s *MemoryStore) ListFeedbackJobsByStatus(ctx context.Context, statuses ...types.JobStatus) ([]types.FeedbackJob, error) {
	want := make(map[types.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.list(ctx, 0, func(j *types.FeedbackJob) bool { return want[j.Status] }, false)
}

func (s *MemoryStore) list(ctx context.Context, limit int, match func(*types.FeedbackJob) bool, newestFirst bool) ([]types.FeedbackJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.FeedbackJob
	for _, j := range s.jobs {
		if match(j) {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if newestFirst {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores job as-is, bypassing preconditions
func (s *MemoryStore) Put(job *types.FeedbackJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
}

// History returns every successfully written version of a job, oldest first
func (s *MemoryStore) History(id uuid.UUID) []types.FeedbackJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FeedbackJob(nil), s.history[id]...)
}
