package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/doc-feedback/internal/types"
)

// DefaultListLimit caps job listings when the caller passes no limit
const DefaultListLimit = 50

const feedbackJobColumns = `id, user_id, document_id, document_url, genre, status, progress,
	current_step, total_steps, step_details, error_message, started_at, completed_at,
	estimated_total_minutes, comments_added, initial_comment_count, initial_revision,
	final_revision, attempt, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedbackJob(row rowScanner) (*types.FeedbackJob, error) {
	var job types.FeedbackJob
	var stepDetailsJSON []byte
	var status string

	err := row.Scan(&job.ID, &job.UserID, &job.DocumentID, &job.DocumentURL, &job.Genre,
		&status, &job.Progress, &job.CurrentStep, &job.TotalSteps, &stepDetailsJSON,
		&job.Error, &job.StartedAt, &job.CompletedAt, &job.EstimatedTotalMinutes,
		&job.CommentsAdded, &job.InitialCommentCount, &job.InitialRevision,
		&job.FinalRevision, &job.Attempt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = types.JobStatus(status)
	if !job.Status.Valid() {
		return nil, fmt.Errorf("invalid job status %q", status)
	}
	if err := json.Unmarshal(stepDetailsJSON, &job.StepDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step details: %w", err)
	}
	if err := job.StepDetails.Validate(); err != nil {
		return nil, fmt.Errorf("invalid step details: %w", err)
	}
	return &job, nil
}

// CreateFeedbackJob inserts a new job record
func (db *DB) CreateFeedbackJob(ctx context.Context, job *types.FeedbackJob) error {
	stepDetailsJSON, err := json.Marshal(job.StepDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal step details: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO feedback_jobs (id, user_id, document_id, document_url, genre, status,
		        progress, current_step, total_steps, step_details, error_message, started_at,
		        completed_at, estimated_total_minutes, comments_added, initial_comment_count,
		        initial_revision, final_revision, attempt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING created_at, updated_at`,
		job.ID, job.UserID, job.DocumentID, job.DocumentURL, job.Genre, string(job.Status),
		job.Progress, job.CurrentStep, job.TotalSteps, stepDetailsJSON, job.Error, job.StartedAt,
		job.CompletedAt, job.EstimatedTotalMinutes, job.CommentsAdded, job.InitialCommentCount,
		job.InitialRevision, job.FinalRevision, job.Attempt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create feedback job: %w", err)
	}
	return nil
}

// GetFeedbackJob retrieves a job by ID, returning nil if it does not exist
func (db *DB) GetFeedbackJob(ctx context.Context, id uuid.UUID) (*types.FeedbackJob, error) {
	job, err := scanFeedbackJob(db.pool.QueryRow(ctx,
		`SELECT `+feedbackJobColumns+` FROM feedback_jobs WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feedback job: %w", err)
	}
	return job, nil
}

// UpdateFeedbackJob writes every mutable field of job, but only if the stored row
// still matches pre. It reports whether the write happened.
func (db *DB) UpdateFeedbackJob(ctx context.Context, job *types.FeedbackJob, pre types.Precondition) (bool, error) {
	stepDetailsJSON, err := json.Marshal(job.StepDetails)
	if err != nil {
		return false, fmt.Errorf("failed to marshal step details: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`UPDATE feedback_jobs
		 SET status = $1, progress = $2, current_step = $3, total_steps = $4, step_details = $5,
		     error_message = $6, started_at = $7, completed_at = $8, estimated_total_minutes = $9,
		     comments_added = $10, initial_comment_count = $11, initial_revision = $12,
		     final_revision = $13, attempt = $14, updated_at = NOW()
		 WHERE id = $15 AND status = $16 AND attempt = $17 AND progress = $18
		 RETURNING updated_at`,
		string(job.Status), job.Progress, job.CurrentStep, job.TotalSteps, stepDetailsJSON,
		job.Error, job.StartedAt, job.CompletedAt, job.EstimatedTotalMinutes,
		job.CommentsAdded, job.InitialCommentCount, job.InitialRevision,
		job.FinalRevision, job.Attempt, job.ID, string(pre.Status), pre.Attempt, pre.Progress,
	).Scan(&job.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to update feedback job: %w", err)
	}
	return true, nil
}

// ListFeedbackJobsByUser returns a user's jobs, newest first
func (db *DB) ListFeedbackJobsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]types.FeedbackJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return db.queryFeedbackJobs(ctx,
		`SELECT `+feedbackJobColumns+` FROM feedback_jobs
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
}

// ListFeedbackJobsByStatus returns every job in one of the given statuses, oldest first
func (db *DB) ListFeedbackJobsByStatus(ctx context.Context, statuses ...types.JobStatus) ([]types.FeedbackJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(s)
	}

	return db.queryFeedbackJobs(ctx,
		`SELECT `+feedbackJobColumns+` FROM feedback_jobs
		 WHERE status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY created_at`,
		args...)
}

func (db *DB) queryFeedbackJobs(ctx context.Context, query string, args ...interface{}) ([]types.FeedbackJob, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.FeedbackJob
	for rows.Next() {
		job, err := scanFeedbackJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback jobs: %w", err)
	}
	return jobs, nil
}
