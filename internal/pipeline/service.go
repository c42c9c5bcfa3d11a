package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/docs"
	"github.com/jonathan/doc-feedback/internal/types"
)

// CreateJobInput is a request to annotate a document
type CreateJobInput struct {
	UserID      uuid.UUID `json:"-" validate:"required"`
	Genre       string    `json:"genre" validate:"required"`
	DocumentURL string    `json:"documentUrl" validate:"required,url"`
}

// Service is the entry point used by the HTTP layer and the CLI
type Service struct {
	store     JobStore
	scheduler JobScheduler
	status    *StatusQuery
	retry     *RetryController
	validate  *validator.Validate
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewService wires the status query and retry controller over store and scheduler
func NewService(store JobStore, scheduler JobScheduler) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Service{
		store:     store,
		scheduler: scheduler,
		status:    NewStatusQuery(store),
		retry:     NewRetryController(store, scheduler),
		validate:  v,
		now:       time.Now,
		log:       zap.S().Named("service"),
	}
}

// Create validates the input, stores a PENDING job and schedules it.
// Input errors are returned as *ValidationError before anything is stored.
func (s *Service) Create(ctx context.Context, in CreateJobInput) (*types.FeedbackJob, error) {
	in.Genre = strings.TrimSpace(in.Genre)
	in.DocumentURL = strings.TrimSpace(in.DocumentURL)

	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &ValidationError{Field: verrs[0].Field(), Message: validationMessage(verrs[0])}
		}
		return nil, &ValidationError{Field: "request", Message: err.Error()}
	}

	genre, ok := types.LookupGenre(in.Genre)
	if !ok {
		return nil, &ValidationError{
			Field:   "genre",
			Message: fmt.Sprintf("unknown genre %q, expected one of %s", in.Genre, strings.Join(types.GenreNames(), ", ")),
		}
	}

	documentID, err := docs.ParseDocumentID(in.DocumentURL)
	if err != nil {
		return nil, &ValidationError{Field: "documentUrl", Message: err.Error()}
	}

	job := types.NewFeedbackJob(in.UserID, documentID, in.DocumentURL, genre, s.now())
	if err := s.store.CreateFeedbackJob(ctx, job); err != nil {
		return nil, err
	}

	s.log.Infow("job created", "job_id", job.ID, "user_id", in.UserID, "genre", genre.Name)
	s.scheduler.Schedule(job.ID)
	return job, nil
}

// StatusFor returns the view of a job owned by requesterID
func (s *Service) StatusFor(ctx context.Context, jobID, requesterID uuid.UUID) (*JobView, error) {
	job, err := s.status.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != requesterID {
		return nil, ErrForbidden
	}
	return NewJobView(job, s.status.now()), nil
}

// Retry resets and reschedules a failed job owned by requesterID
func (s *Service) Retry(ctx context.Context, jobID, requesterID uuid.UUID) (*types.FeedbackJob, error) {
	return s.retry.Retry(ctx, jobID, requesterID)
}

// ListForUser returns views of a user's jobs, newest first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]JobView, error) {
	jobs, err := s.store.ListFeedbackJobsByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]JobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, *NewJobView(&jobs[i], now))
	}
	return views, nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
