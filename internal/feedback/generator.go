// Package feedback turns document content into feedback text with the language model.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/llm"
	"github.com/jonathan/doc-feedback/internal/prompts"
	"github.com/jonathan/doc-feedback/internal/schemas"
	"github.com/jonathan/doc-feedback/internal/types"
)

const (
	promptFile = "feedback.json"
	rubricFile = "rubrics.json"

	// maxContentRunes bounds how much of a document goes into the overview prompt
	maxContentRunes = 30000
	// overviewAttempts is how many times an overview that fails schema validation is regenerated
	overviewAttempts = 2

	untitledSection = "본문"
)

// Generator writes feedback blocks with an llm.Client
type Generator struct {
	client llm.Client
	log    *zap.SugaredLogger
}

// NewGenerator creates a generator backed by client
func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client, log: zap.S().Named("feedback")}
}

// Overview produces the document-level feedback block
func (g *Generator) Overview(ctx context.Context, genre types.Genre, doc *types.Document) (string, error) {
	rubric, err := prompts.Get(rubricFile, genre.Key)
	if err != nil {
		return "", err
	}
	system, err := prompts.Get(promptFile, "system")
	if err != nil {
		return "", err
	}
	prompt, err := prompts.Render(promptFile, "overview", map[string]string{
		"Genre":   genre.Name,
		"Title":   doc.Title,
		"Rubric":  rubric,
		"Content": truncateRunes(doc.Text(), maxContentRunes),
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= overviewAttempts; attempt++ {
		raw, err := g.client.Generate(ctx, llm.Request{
			Tier:   llm.TierStandard,
			System: system,
			Prompt: prompt,
			JSON:   true,
		})
		if err != nil {
			return "", fmt.Errorf("failed to generate overview: %w", err)
		}

		overview, err := parseOverview(raw)
		if err == nil {
			return OverviewBlock(*overview), nil
		}
		lastErr = err
		g.log.Warnw("overview rejected", "document_id", doc.ID, "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("failed to generate a valid overview: %w", lastErr)
}

// Section produces a guide for an empty section or an evaluation for a filled one
func (g *Generator) Section(ctx context.Context, genre types.Genre, section types.Section) (string, error) {
	rubric, err := prompts.Get(rubricFile, genre.Key)
	if err != nil {
		return "", err
	}
	system, err := prompts.Get(promptFile, "system")
	if err != nil {
		return "", err
	}

	title := section.Title
	if title == "" {
		title = untitledSection
	}

	kind, key, tier := types.FeedbackEvaluation, "section-evaluate", llm.TierStandard
	data := map[string]string{
		"Genre":        genre.Name,
		"SectionTitle": title,
		"Rubric":       rubric,
		"SectionBody":  section.Body,
	}
	if section.Empty {
		kind, key, tier = types.FeedbackGuide, "section-guide", llm.TierLite
		delete(data, "SectionBody")
	}

	prompt, err := prompts.Render(promptFile, key, data)
	if err != nil {
		return "", err
	}

	text, err := g.client.Generate(ctx, llm.Request{Tier: tier, System: system, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to generate feedback for section %q: %w", title, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty feedback for section %q", title)
	}
	return SectionBlock(kind, text), nil
}

func parseOverview(raw string) (*Overview, error) {
	if err := schemas.Validate(schemas.Overview, raw); err != nil {
		return nil, err
	}
	var o Overview
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("failed to parse overview: %w", err)
	}
	if strings.TrimSpace(o.Summary) == "" {
		return nil, errors.New("overview summary is blank")
	}
	return &o, nil
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
