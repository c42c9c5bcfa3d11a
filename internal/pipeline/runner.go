// Package pipeline runs feedback jobs through their five stages and answers status and retry requests.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/doc-feedback/internal/analysis"
	"github.com/jonathan/doc-feedback/internal/docs"
	"github.com/jonathan/doc-feedback/internal/observability"
	"github.com/jonathan/doc-feedback/internal/types"
)

// RunnerConfig tunes stage behaviour
type RunnerConfig struct {
	// SectionConcurrency bounds parallel section feedback calls
	SectionConcurrency int
	// MinSectionChars is the shortest section text that gets its own feedback
	MinSectionChars int
	// StageTimeout bounds each stage; zero disables it
	StageTimeout time.Duration
	PollInterval time.Duration
	PollMaxWait  time.Duration
}

// DefaultRunnerConfig returns the production defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		SectionConcurrency: 4,
		MinSectionChars:    5,
		PollInterval:       5 * time.Second,
		PollMaxWait:        5 * time.Minute,
	}
}

// ProgressEvent reports a persisted change of a running job
type ProgressEvent struct {
	JobID    uuid.UUID       `json:"job_id"`
	Status   types.JobStatus `json:"status"`
	Progress int             `json:"progress"`
	Step     string          `json:"step"`
	// Items is set only on the document update checkpoint
	Items []types.FeedbackItem `json:"items,omitempty"`
}

// ProgressCallback is called after every persisted job write
type ProgressCallback func(event ProgressEvent)

// Runner advances a single job through the pipeline stages
type Runner struct {
	store     JobStore
	docs      DocumentSource
	generator FeedbackGenerator
	cfg       RunnerConfig
	now       func() time.Time
	log       *zap.SugaredLogger

	// OnProgress is optional
	OnProgress ProgressCallback
}

// NewRunner creates a runner. Zero config values fall back to the defaults, except StageTimeout.
func NewRunner(store JobStore, source DocumentSource, generator FeedbackGenerator, cfg RunnerConfig) *Runner {
	def := DefaultRunnerConfig()
	if cfg.SectionConcurrency <= 0 {
		cfg.SectionConcurrency = def.SectionConcurrency
	}
	if cfg.MinSectionChars <= 0 {
		cfg.MinSectionChars = def.MinSectionChars
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollMaxWait <= 0 {
		cfg.PollMaxWait = def.PollMaxWait
	}
	return &Runner{
		store:     store,
		docs:      source,
		generator: generator,
		cfg:       cfg,
		now:       time.Now,
		log:       zap.S().Named("runner"),
	}
}

// jobRun is one claimed attempt at a job. pre always matches the last row written.
type jobRun struct {
	job *types.FeedbackJob
	pre types.Precondition
	// inserted is reported with the next progress event
	inserted []types.FeedbackItem
}

// runState carries stage outputs forward
type runState struct {
	doc      *types.Document
	baseline types.RevisionState
	analysis *analysis.Result
	items    []types.FeedbackItem
	inserted int
	final    types.RevisionState
}

// Advance claims a PENDING job and runs every stage in order, persisting after each one.
// A stage failure is written to the job and returned as a *StageError.
func (r *Runner) Advance(ctx context.Context, jobID uuid.UUID) error {
	run, err := r.claim(ctx, jobID)
	if err != nil {
		return err
	}
	return r.execute(ctx, run)
}

// claim moves a PENDING job to PROCESSING and starts a new attempt
func (r *Runner) claim(ctx context.Context, jobID uuid.UUID) (*jobRun, error) {
	job, err := r.store.GetFeedbackJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status != types.JobStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotRunnable, job.Status)
	}

	run := &jobRun{job: job, pre: types.PreconditionOf(job)}
	job.Status = types.JobStatusProcessing
	job.Attempt++
	job.Progress = startProgress
	job.CurrentStep = types.StringPtr(StageDocumentAccess.Label())

	ok, err := r.store.UpdateFeedbackJob(ctx, job, run.pre)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: claimed by another runner", ErrJobNotRunnable)
	}
	run.pre = types.PreconditionOf(job)
	r.emit(job, nil)
	r.log.Infow("job started", "job_id", jobID, "attempt", job.Attempt)
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *jobRun) error {
	state := &runState{}
	for _, stage := range Stages() {
		started := time.Now()
		err := r.runStage(ctx, stage, run.job, state)
		observability.ObserveStageDuration(stage.Name(), err == nil, time.Since(started))
		if err != nil {
			return r.fail(ctx, run, stage, err)
		}

		r.completeStage(run.job, stage, state)
		if stage == StageDocumentUpdate {
			run.inserted = state.items
		}
		if err := r.persist(ctx, run); err != nil {
			return err
		}
		r.log.Infow("stage completed",
			"job_id", run.job.ID,
			"stage", stage.Name(),
			"progress", run.job.Progress,
			"duration", time.Since(started))
	}

	observability.IncreaseJobsTotal(string(types.JobStatusCompleted))
	r.log.Infow("job completed", "job_id", run.job.ID, "comments_added", run.job.CommentsAdded)
	return nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, job *types.FeedbackJob, st *runState) error {
	if r.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.StageTimeout)
		defer cancel()
	}

	switch stage {
	case StageDocumentAccess:
		return r.accessDocument(ctx, job, st)
	case StageContentAnalysis:
		result, err := analysis.Analyze(st.doc)
		if err != nil {
			return err
		}
		st.analysis = result
		r.log.Debugw("content analyzed",
			"job_id", job.ID,
			"sections", len(result.Sections),
			"headings", result.HeadingCount,
			"empty", result.EmptyCount)
		return nil
	case StageFeedbackGeneration:
		return r.generateFeedback(ctx, job, st)
	case StageDocumentUpdate:
		n, err := r.docs.InsertFeedback(ctx, job.DocumentID, st.doc.RevisionID, st.items)
		if err != nil {
			return err
		}
		st.inserted = n
		observability.AddItemsInserted(n)
		return nil
	case StageChangeConfirmation:
		st.final = r.confirmChanges(ctx, job, st.baseline)
		return nil
	}
	return fmt.Errorf("unknown stage %d", stage)
}

// completeStage applies the transition for a successful stage
func (r *Runner) completeStage(job *types.FeedbackJob, stage Stage, st *runState) {
	job.Progress = stage.Progress()
	if idx := stage.StepIndex(); idx >= 0 {
		job.StepDetails.Set(idx, types.StepCompleted)
	}

	switch stage {
	case StageDocumentAccess:
		job.InitialRevision = types.StringPtr(st.baseline.RevisionID)
		job.InitialCommentCount = st.baseline.CommentCount
	case StageDocumentUpdate:
		job.CommentsAdded = st.inserted
	case StageChangeConfirmation:
		job.FinalRevision = types.StringPtr(st.final.RevisionID)
		if delta := st.final.CommentCount - st.baseline.CommentCount; delta > 0 {
			job.CommentsAdded = delta
		}
	}

	if next := stage + 1; next.valid() {
		job.CurrentStep = types.StringPtr(next.Label())
		return
	}
	now := r.now()
	job.Status = types.JobStatusCompleted
	job.CurrentStep = types.StringPtr(labelCompleted)
	job.CompletedAt = &now
}

func (r *Runner) accessDocument(ctx context.Context, job *types.FeedbackJob, st *runState) error {
	doc, err := r.docs.Fetch(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	baseline, err := r.docs.RevisionState(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	st.doc = doc
	st.baseline = baseline
	return nil
}

// generateFeedback writes the overview first, then feedback for every non-trivial section in parallel.
// Items keep section order; insertion order is decided by offset in the document update stage.
func (r *Runner) generateFeedback(ctx context.Context, job *types.FeedbackJob, st *runState) error {
	genre, ok := types.LookupGenre(job.Genre)
	if !ok {
		return fmt.Errorf("unknown genre %q", job.Genre)
	}

	overview, err := r.generator.Overview(ctx, genre, st.doc)
	if err != nil {
		return err
	}

	var targets []types.Section
	for _, s := range st.analysis.Sections {
		if !analysis.IsTrivial(s, r.cfg.MinSectionChars) {
			targets = append(targets, s)
		}
	}

	sectionItems := make([]types.FeedbackItem, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.SectionConcurrency)
	for i, section := range targets {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic generating feedback for section %q: %v", section.Title, p)
				}
			}()

			text, err := r.generator.Section(gctx, genre, section)
			if err != nil {
				return err
			}
			kind := types.FeedbackEvaluation
			if section.Empty {
				kind = types.FeedbackGuide
			}
			sectionItems[i] = types.FeedbackItem{Type: kind, Content: text, InsertAt: sectionInsertAt(section)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	st.items = append([]types.FeedbackItem{{
		Type:     types.FeedbackOverview,
		Content:  overview,
		InsertAt: st.doc.BodyStart(),
	}}, sectionItems...)
	return nil
}

// sectionInsertAt is just before the newline that ends the section's last paragraph
func sectionInsertAt(s types.Section) int64 {
	if s.EndIndex-1 < s.StartIndex {
		return s.StartIndex
	}
	return s.EndIndex - 1
}

// confirmChanges polls until the document differs from baseline or the wait runs out.
// It returns the last state it saw and never fails.
func (r *Runner) confirmChanges(ctx context.Context, job *types.FeedbackJob, baseline types.RevisionState) types.RevisionState {
	latest := baseline
	deadline := time.NewTimer(r.cfg.PollMaxWait)
	defer deadline.Stop()
	ticker := jitterbug.New(r.cfg.PollInterval, &jitterbug.Norm{Stdev: r.cfg.PollInterval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return latest
		case <-deadline.C:
			r.log.Infow("no document change observed before max wait", "job_id", job.ID)
			return latest
		case <-ticker.C:
			state, err := r.docs.RevisionState(ctx, job.DocumentID)
			if err != nil {
				r.log.Warnw("revision poll failed", "job_id", job.ID, "error", err)
				continue
			}
			latest = state
			if state.Differs(baseline) {
				return latest
			}
		}
	}
}

// fail records a stage failure unless ctx was cancelled, in which case the scheduler writes the outcome
func (r *Runner) fail(ctx context.Context, run *jobRun, stage Stage, cause error) error {
	stageErr := &StageError{Stage: stage, Err: cause}
	if docs.IsAccessError(cause) {
		// Sharing or credentials problem the document owner has to fix
		r.log.Infow("document not accessible", "job_id", run.job.ID, "stage", stage.Name(), "error", cause)
	} else {
		r.log.Warnw("stage failed", "job_id", run.job.ID, "stage", stage.Name(), "error", cause)
	}
	if ctx.Err() != nil {
		return stageErr
	}

	markFailed(run.job, stage.StepIndex(), stageErr.Error(), fmt.Sprintf(failedLabelFmt, stage.Label()), r.now())
	ok, err := r.store.UpdateFeedbackJob(ctx, run.job, run.pre)
	if err != nil {
		r.log.Errorw("failed to record stage failure", "job_id", run.job.ID, "error", err)
		return stageErr
	}
	if ok {
		run.pre = types.PreconditionOf(run.job)
		observability.IncreaseJobsTotal(string(types.JobStatusFailed))
		r.emit(run.job, nil)
	}
	return stageErr
}

func (r *Runner) persist(ctx context.Context, run *jobRun) error {
	ok, err := r.store.UpdateFeedbackJob(ctx, run.job, run.pre)
	if err != nil {
		return fmt.Errorf("failed to save job progress: %w", err)
	}
	if !ok {
		return ErrJobSuperseded
	}
	run.pre = types.PreconditionOf(run.job)
	r.emit(run.job, run.inserted)
	run.inserted = nil
	return nil
}

func (r *Runner) emit(job *types.FeedbackJob, items []types.FeedbackItem) {
	if r.OnProgress == nil {
		return
	}
	step := ""
	if job.CurrentStep != nil {
		step = *job.CurrentStep
	}
	r.OnProgress(ProgressEvent{JobID: job.ID, Status: job.Status, Progress: job.Progress, Step: step, Items: items})
}

// markFailed applies the FAILED transition. stepIndex < 0 leaves step details untouched.
func markFailed(job *types.FeedbackJob, stepIndex int, message, label string, now time.Time) {
	job.Status = types.JobStatusFailed
	job.Error = types.StringPtr(message)
	job.CurrentStep = types.StringPtr(label)
	job.CompletedAt = &now
	if stepIndex >= 0 {
		job.StepDetails.Set(stepIndex, types.StepFailed)
	}
}
