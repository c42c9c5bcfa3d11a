package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/doc-feedback/internal/analysis"
	"github.com/jonathan/doc-feedback/internal/docs"
	"github.com/jonathan/doc-feedback/internal/pipeline/pipelinetest"
	"github.com/jonathan/doc-feedback/internal/types"
)

const testDocURL = "https://docs.google.com/document/d/doc-1/edit"

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{PollInterval: 5 * time.Millisecond, PollMaxWait: 60 * time.Millisecond}
}

func seedJob(t *testing.T, store *pipelinetest.MemoryStore) *types.FeedbackJob {
	t.Helper()
	genre, ok := types.LookupGenre("워크시트")
	require.True(t, ok)
	job := types.NewFeedbackJob(uuid.New(), "doc-1", testDocURL, genre, time.Now())
	require.NoError(t, store.CreateFeedbackJob(context.Background(), job))
	return job
}

func loadJob(t *testing.T, store *pipelinetest.MemoryStore, id uuid.UUID) *types.FeedbackJob {
	t.Helper()
	job, err := store.GetFeedbackJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

// assertHistoryInvariants checks every persisted version of a job
func assertHistoryInvariants(t *testing.T, history []types.FeedbackJob) {
	t.Helper()
	lastProgress := -1
	for i, v := range history {
		assert.NoError(t, v.StepDetails.Validate(), "version %d", i)
		assert.Equal(t, v.Status.IsTerminal(), v.CompletedAt != nil, "version %d completedAt", i)
		if v.Status == types.JobStatusPending {
			lastProgress = -1
		}
		if v.Status == types.JobStatusProcessing {
			assert.GreaterOrEqual(t, v.Progress, lastProgress, "version %d progress", i)
			lastProgress = v.Progress
		}
	}
}

func TestAdvance_CompletesJob(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{
		Doc: pipelinetest.WorksheetDocument(),
		States: []types.RevisionState{
			{RevisionID: "rev-1", CommentCount: 0},
			{RevisionID: "rev-2", CommentCount: 0},
		},
	}
	gen := &pipelinetest.FakeGenerator{}
	runner := NewRunner(store, docs, gen, testRunnerConfig())

	var events []ProgressEvent
	runner.OnProgress = func(e ProgressEvent) { events = append(events, e) }

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 1, got.Attempt)
	assert.Nil(t, got.Error)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.CurrentStep)
	assert.Equal(t, "Completed", *got.CurrentStep)
	assert.Equal(t, -1, got.StepDetails.FirstIncomplete())
	require.NotNil(t, got.InitialRevision)
	assert.Equal(t, "rev-1", *got.InitialRevision)
	require.NotNil(t, got.FinalRevision)
	assert.Equal(t, "rev-2", *got.FinalRevision)

	batches := docs.Inserted()
	require.Len(t, batches, 1)
	items := batches[0]
	require.Len(t, items, 5)
	assert.Equal(t, types.FeedbackOverview, items[0].Type)
	assert.Equal(t, int64(1), items[0].InsertAt)
	assert.Equal(t, 5, got.CommentsAdded)

	kinds := map[types.FeedbackType]int{}
	for _, it := range items[1:] {
		kinds[it.Type]++
	}
	assert.Equal(t, 2, kinds[types.FeedbackGuide])
	assert.Equal(t, 2, kinds[types.FeedbackEvaluation])

	history := store.History(job.ID)
	progress := make([]int, 0, len(history))
	for _, v := range history {
		progress = append(progress, v.Progress)
	}
	assert.Equal(t, []int{0, 10, 25, 50, 75, 90, 100}, progress)
	assertHistoryInvariants(t, history)

	require.Len(t, events, 6)
	assert.Equal(t, "Document access", events[0].Step)
	assert.Equal(t, types.JobStatusCompleted, events[5].Status)
	for i, e := range events {
		if i == 4 {
			assert.Equal(t, 90, e.Progress)
			assert.Len(t, e.Items, 5)
			continue
		}
		assert.Empty(t, e.Items, "event %d", i)
	}
}

func TestAdvance_SectionInsertOffsets(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	doc := pipelinetest.WorksheetDocument()
	docs := &pipelinetest.FakeDocs{Doc: doc}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))

	items := docs.Inserted()[0]
	// "1. 실험 목적" ends with paragraph 2; feedback goes before its newline
	assert.Equal(t, doc.Paragraphs[2].EndIndex-1, items[2].InsertAt)
	assert.Equal(t, doc.Paragraphs[6].EndIndex-1, items[4].InsertAt)
}

func TestAdvance_CommentDeltaRefinesCount(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{
		Doc: pipelinetest.WorksheetDocument(),
		States: []types.RevisionState{
			{RevisionID: "rev-1", CommentCount: 2},
			{RevisionID: "rev-1", CommentCount: 4},
		},
	}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, 2, got.InitialCommentCount)
	assert.Equal(t, 2, got.CommentsAdded)
}

func TestAdvance_ConfirmationTimeoutStillCompletes(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{
		Doc:    pipelinetest.WorksheetDocument(),
		States: []types.RevisionState{{RevisionID: "rev-1"}},
	}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusCompleted, got.Status)
	require.NotNil(t, got.FinalRevision)
	assert.Equal(t, "rev-1", *got.FinalRevision)
	assert.Greater(t, docs.RevisionCalls(), 1)
}

func TestAdvance_ConfirmationPollErrorsAreIgnored(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{Doc: pipelinetest.WorksheetDocument()}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())
	runner.OnProgress = func(e ProgressEvent) {
		if e.Progress == StageDocumentUpdate.Progress() {
			docs.RevisionErr = errors.New("backend unavailable")
		}
	}

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))
	assert.Equal(t, types.JobStatusCompleted, loadJob(t, store, job.ID).Status)
}

func TestAdvance_DocumentAccessFailure(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	runner := NewRunner(store, &pipelinetest.FakeDocs{}, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	err := runner.Advance(context.Background(), job.ID)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageDocumentAccess, stageErr.Stage)

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "not found")
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 10, got.Progress)
	assert.Equal(t, "Failed: Document access", *got.CurrentStep)
	assert.Equal(t, types.StepFailed, got.StepDetails.DocumentAccess)
	assert.Equal(t, types.StepPending, got.StepDetails.ContentAnalysis)
	assertHistoryInvariants(t, store.History(job.ID))
}

func TestAdvance_AccessErrorLogging(t *testing.T) {
	tests := []struct {
		name      string
		fetchErr  error
		wantMsg   string
		wantLevel string
	}{
		{
			name: "sharing problem",
			fetchErr: &docs.AccessError{
				Kind:           docs.AccessDenied,
				DocumentID:     "doc-1",
				ServiceAccount: "feedback@project.iam.gserviceaccount.com",
			},
			wantMsg:   "document not accessible",
			wantLevel: "info",
		},
		{
			name:      "backend fault",
			fetchErr:  errors.New("backend unavailable"),
			wantMsg:   "stage failed",
			wantLevel: "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := pipelinetest.NewMemoryStore()
			source := &pipelinetest.FakeDocs{FetchHook: func(context.Context) error { return tt.fetchErr }}
			runner := NewRunner(store, source, &pipelinetest.FakeGenerator{}, testRunnerConfig())
			core, logs := observer.New(zap.DebugLevel)
			runner.log = zap.New(core).Sugar()

			job := seedJob(t, store)
			require.Error(t, runner.Advance(context.Background(), job.ID))

			entries := logs.FilterMessage(tt.wantMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level.String())
			assert.Equal(t, types.JobStatusFailed, loadJob(t, store, job.ID).Status)
		})
	}
}

func TestAdvance_LogsAnalysisCounts(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	source := &pipelinetest.FakeDocs{
		Doc: pipelinetest.WorksheetDocument(),
		States: []types.RevisionState{
			{RevisionID: "rev-1", CommentCount: 0},
			{RevisionID: "rev-2", CommentCount: 0},
		},
	}
	runner := NewRunner(store, source, &pipelinetest.FakeGenerator{}, testRunnerConfig())
	core, logs := observer.New(zap.DebugLevel)
	runner.log = zap.New(core).Sugar()

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))

	want, err := analysis.Analyze(pipelinetest.WorksheetDocument())
	require.NoError(t, err)

	entries := logs.FilterMessage("content analyzed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, len(want.Sections), fields["sections"])
	assert.EqualValues(t, want.HeadingCount, fields["headings"])
	assert.EqualValues(t, want.EmptyCount, fields["empty"])
}

func TestAdvance_EmptyDocumentFailsAnalysis(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{Doc: pipelinetest.BuildDocument("rev-1",
		types.Paragraph{Text: "\n"}, types.Paragraph{Text: "_____\n"})}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	require.Error(t, runner.Advance(context.Background(), job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, types.StepCompleted, got.StepDetails.DocumentAccess)
	assert.Equal(t, types.StepFailed, got.StepDetails.ContentAnalysis)
	assert.Equal(t, 25, got.Progress)
	assert.Contains(t, *got.Error, "empty")
}

func TestAdvance_GenerationFailure(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{Doc: pipelinetest.WorksheetDocument()}
	gen := &pipelinetest.FakeGenerator{SectionHook: func(_ context.Context, s types.Section) error {
		if s.Title == "2. 가설" {
			return errors.New("model quota exceeded")
		}
		return nil
	}}
	runner := NewRunner(store, docs, gen, testRunnerConfig())

	job := seedJob(t, store)
	require.Error(t, runner.Advance(context.Background(), job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, types.StepFailed, got.StepDetails.FeedbackGeneration)
	assert.Equal(t, types.StepPending, got.StepDetails.DocumentUpdate)
	assert.Contains(t, *got.Error, "model quota exceeded")
	assert.Empty(t, docs.Inserted())
}

func TestAdvance_SectionPanicFailsStage(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{Doc: pipelinetest.WorksheetDocument()}
	gen := &pipelinetest.FakeGenerator{SectionHook: func(context.Context, types.Section) error {
		panic("boom")
	}}
	runner := NewRunner(store, docs, gen, testRunnerConfig())

	job := seedJob(t, store)
	require.Error(t, runner.Advance(context.Background(), job.ID))
	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.StepFailed, got.StepDetails.FeedbackGeneration)
	assert.Contains(t, *got.Error, "panic")
}

func TestAdvance_UpdateFailure(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{
		Doc:       pipelinetest.WorksheetDocument(),
		InsertErr: errors.New("permission denied on document doc-1: grant edit access to sa@example.com"),
	}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	require.Error(t, runner.Advance(context.Background(), job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.StepFailed, got.StepDetails.DocumentUpdate)
	assert.Equal(t, 75, got.Progress)
	assert.Equal(t, 0, got.CommentsAdded)
	assert.Contains(t, *got.Error, "grant edit access")
	assert.Equal(t, "Failed: Document update", *got.CurrentStep)
}

func TestAdvance_SkipsTrivialSections(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{Doc: pipelinetest.BuildDocument("rev-1",
		types.Paragraph{Text: "1.\n"},
		types.Paragraph{Text: "2. 느낀 점\n"},
		types.Paragraph{Text: "친구들과 함께 실험하면서 협동의 중요성을 배웠다.\n"},
	)}
	gen := &pipelinetest.FakeGenerator{}
	runner := NewRunner(store, docs, gen, testRunnerConfig())

	job := seedJob(t, store)
	require.NoError(t, runner.Advance(context.Background(), job.ID))

	sections := gen.Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "2. 느낀 점", sections[0].Title)
}

func TestAdvance_NotFound(t *testing.T) {
	runner := NewRunner(pipelinetest.NewMemoryStore(), &pipelinetest.FakeDocs{}, &pipelinetest.FakeGenerator{}, testRunnerConfig())
	err := runner.Advance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestAdvance_NotPending(t *testing.T) {
	for _, status := range []types.JobStatus{types.JobStatusProcessing, types.JobStatusCompleted, types.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			store := pipelinetest.NewMemoryStore()
			job := seedJob(t, store)
			job.Status = status
			store.Put(job)

			runner := NewRunner(store, &pipelinetest.FakeDocs{Doc: pipelinetest.WorksheetDocument()}, &pipelinetest.FakeGenerator{}, testRunnerConfig())
			err := runner.Advance(context.Background(), job.ID)
			assert.ErrorIs(t, err, ErrJobNotRunnable)

			got := loadJob(t, store, job.ID)
			assert.Equal(t, status, got.Status)
			assert.Equal(t, 0, got.Attempt)
		})
	}
}

func TestAdvance_StageTimeout(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	docs := &pipelinetest.FakeDocs{
		Doc: pipelinetest.WorksheetDocument(),
		FetchHook: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	cfg := testRunnerConfig()
	cfg.StageTimeout = 20 * time.Millisecond
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, cfg)

	job := seedJob(t, store)
	err := runner.Advance(context.Background(), job.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, types.StepFailed, got.StepDetails.DocumentAccess)
}

func TestAdvance_CancelledContextLeavesFailureToScheduler(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	docs := &pipelinetest.FakeDocs{
		Doc: pipelinetest.WorksheetDocument(),
		FetchHook: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	}
	runner := NewRunner(store, docs, &pipelinetest.FakeGenerator{}, testRunnerConfig())

	job := seedJob(t, store)
	require.Error(t, runner.Advance(ctx, job.ID))

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusProcessing, got.Status)
	assert.Nil(t, got.Error)
}

func TestAdvance_SupersededRunStopsWriting(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	job := seedJob(t, store)

	var once sync.Once
	gen := &pipelinetest.FakeGenerator{SectionHook: func(context.Context, types.Section) error {
		once.Do(func() {
			// Another writer fails the job while feedback is being generated
			current, _ := store.GetFeedbackJob(context.Background(), job.ID)
			markFailed(current, 2, "feedback job timed out after 1s", labelTimedOut, time.Now())
			store.Put(current)
		})
		return nil
	}}
	docs := &pipelinetest.FakeDocs{Doc: pipelinetest.WorksheetDocument()}
	runner := NewRunner(store, docs, gen, testRunnerConfig())

	err := runner.Advance(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobSuperseded)

	got := loadJob(t, store, job.ID)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, "Timed out", *got.CurrentStep)
	assert.Empty(t, docs.Inserted())
}

func TestAdvance_UnknownGenre(t *testing.T) {
	store := pipelinetest.NewMemoryStore()
	job := seedJob(t, store)
	job.Genre = "시"
	store.Put(job)

	runner := NewRunner(store, &pipelinetest.FakeDocs{Doc: pipelinetest.WorksheetDocument()}, &pipelinetest.FakeGenerator{}, testRunnerConfig())
	require.Error(t, runner.Advance(context.Background(), job.ID))
	assert.Equal(t, types.StepFailed, loadJob(t, store, job.ID).StepDetails.FeedbackGeneration)
}

func TestSectionInsertAt(t *testing.T) {
	assert.Equal(t, int64(19), sectionInsertAt(types.Section{StartIndex: 10, EndIndex: 20}))
	assert.Equal(t, int64(10), sectionInsertAt(types.Section{StartIndex: 10, EndIndex: 10}))
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(nil, nil, nil, RunnerConfig{})
	assert.Equal(t, DefaultRunnerConfig(), r.cfg)
}
