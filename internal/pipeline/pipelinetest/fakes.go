package pipelinetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/doc-feedback/internal/types"
)

// FakeDocs is a DocumentSource backed by a fixed document
type FakeDocs struct {
	mu sync.Mutex

	Doc *types.Document
	// FetchHook runs at the start of Fetch; a non-nil error fails the fetch
	FetchHook   func(ctx context.Context) error
	RevisionErr error
	InsertErr   error
	// States are returned by successive RevisionState calls; the last one repeats.
	// With no states, the document's revision and zero comments are returned.
	States []types.RevisionState

	revisionCalls int
	inserted      [][]types.FeedbackItem
}

func (f *FakeDocs) Fetch(ctx context.Context, documentID string) (*types.Document, error) {
	if f.FetchHook != nil {
		if err := f.FetchHook(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Doc == nil {
		return nil, fmt.Errorf("document %s not found", documentID)
	}
	doc := *f.Doc
	doc.ID = documentID
	return &doc, nil
}

func (f *FakeDocs) RevisionState(ctx context.Context, _ string) (types.RevisionState, error) {
	if err := ctx.Err(); err != nil {
		return types.RevisionState{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RevisionErr != nil {
		return types.RevisionState{}, f.RevisionErr
	}
	f.revisionCalls++
	if len(f.States) == 0 {
		rev := ""
		if f.Doc != nil {
			rev = f.Doc.RevisionID
		}
		return types.RevisionState{RevisionID: rev}, nil
	}
	idx := f.revisionCalls - 1
	if idx >= len(f.States) {
		idx = len(f.States) - 1
	}
	return f.States[idx], nil
}

func (f *FakeDocs) InsertFeedback(ctx context.Context, _ string, _ string, items []types.FeedbackItem) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return 0, f.InsertErr
	}
	f.inserted = append(f.inserted, append([]types.FeedbackItem(nil), items...))
	return len(items), nil
}

// Inserted returns the item batches passed to InsertFeedback
func (f *FakeDocs) Inserted() [][]types.FeedbackItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]types.FeedbackItem(nil), f.inserted...)
}

// RevisionCalls returns how many times RevisionState succeeded
func (f *FakeDocs) RevisionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revisionCalls
}

// FakeGenerator is a FeedbackGenerator that echoes section titles
type FakeGenerator struct {
	mu sync.Mutex

	OverviewErr error
	// SectionHook runs for every section; a non-nil error fails that section
	SectionHook func(ctx context.Context, section types.Section) error

	sections []types.Section
}

func (g *FakeGenerator) Overview(ctx context.Context, genre types.Genre, _ *types.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.OverviewErr != nil {
		return "", g.OverviewErr
	}
	return types.FeedbackMarker + " overview for " + genre.Key + "\n", nil
}

func (g *FakeGenerator) Section(ctx context.Context, _ types.Genre, section types.Section) (string, error) {
	if g.SectionHook != nil {
		if err := g.SectionHook(ctx, section); err != nil {
			return "", err
		}
	}
	g.mu.Lock()
	g.sections = append(g.sections, section)
	g.mu.Unlock()
	return "\n" + types.FeedbackMarker + " " + section.Title, nil
}

// Sections returns the sections feedback was generated for, in call order
func (g *FakeGenerator) Sections() []types.Section {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.Section(nil), g.sections...)
}

// FakeScheduler records scheduled job ids without running them
type FakeScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
}

func (s *FakeScheduler) Schedule(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, jobID)
}

// Scheduled returns the ids passed to Schedule, in order
func (s *FakeScheduler) Scheduled() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.scheduled...)
}
