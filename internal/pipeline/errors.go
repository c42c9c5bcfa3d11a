package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when no job has the requested id
	ErrJobNotFound = errors.New("feedback job not found")
	// ErrForbidden is returned when the requester does not own the job
	ErrForbidden = errors.New("feedback job belongs to another user")
	// ErrInvalidState is returned when retrying a job that is not FAILED
	ErrInvalidState = errors.New("only failed jobs can be retried")
	// ErrJobNotRunnable is returned when the runner is asked to advance a job that is not PENDING
	ErrJobNotRunnable = errors.New("feedback job is not pending")
	// ErrJobSuperseded is returned when a conditional write lost to another writer
	ErrJobSuperseded = errors.New("feedback job was modified by another writer")
	// ErrPipelineTimeout marks failures written by the scheduler timeout
	ErrPipelineTimeout = errors.New("feedback job timed out")
)

// StageError attributes a runner failure to a pipeline stage
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage.Label(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ValidationError is an input error rejected before any job is created
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
