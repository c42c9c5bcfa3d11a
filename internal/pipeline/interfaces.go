package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/doc-feedback/internal/types"
)

// JobStore persists feedback jobs. Updates are conditional on the stored status and attempt.
type JobStore interface {
	CreateFeedbackJob(ctx context.Context, job *types.FeedbackJob) error
	// GetFeedbackJob returns nil, nil when the job does not exist
	GetFeedbackJob(ctx context.Context, id uuid.UUID) (*types.FeedbackJob, error)
	UpdateFeedbackJob(ctx context.Context, job *types.FeedbackJob, pre types.Precondition) (bool, error)
	ListFeedbackJobsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]types.FeedbackJob, error)
	ListFeedbackJobsByStatus(ctx context.Context, statuses ...types.JobStatus) ([]types.FeedbackJob, error)
}

// DocumentSource reads and annotates the external document
type DocumentSource interface {
	Fetch(ctx context.Context, documentID string) (*types.Document, error)
	RevisionState(ctx context.Context, documentID string) (types.RevisionState, error)
	// InsertFeedback writes all items in one batch and returns how many were written
	InsertFeedback(ctx context.Context, documentID, revisionID string, items []types.FeedbackItem) (int, error)
}

// FeedbackGenerator writes the text of feedback blocks
type FeedbackGenerator interface {
	Overview(ctx context.Context, genre types.Genre, doc *types.Document) (string, error)
	Section(ctx context.Context, genre types.Genre, section types.Section) (string, error)
}

// JobScheduler starts a job in the background
type JobScheduler interface {
	Schedule(jobID uuid.UUID)
}
