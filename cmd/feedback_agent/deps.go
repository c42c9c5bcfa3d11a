package main

import (
	"context"
	"fmt"

	"github.com/jonathan/doc-feedback/internal/docs"
	"github.com/jonathan/doc-feedback/internal/feedback"
	"github.com/jonathan/doc-feedback/internal/llm"
	"github.com/jonathan/doc-feedback/internal/pipeline"
)

// newRunner wires the document source and the feedback generator into a runner.
// The returned close func releases the model client.
func newRunner(ctx context.Context, store pipeline.JobStore) (*pipeline.Runner, *docs.Client, func(), error) {
	docClient, err := docs.NewClient(ctx, docs.Config{
		CredentialsFile:     cfg.Google.CredentialsFile,
		ServiceAccountEmail: cfg.Google.ServiceAccountEmail,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create Google Docs client: %w", err)
	}

	llmConfig := llm.DefaultConfig().
		WithModel(llm.TierLite, cfg.Gemini.LiteModel).
		WithModel(llm.TierStandard, cfg.Gemini.StandardModel)
	llmClient, err := llm.NewGeminiClient(ctx, llmConfig, cfg.Gemini.APIKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	runner := pipeline.NewRunner(store, docClient, feedback.NewGenerator(llmClient), pipeline.RunnerConfig{
		SectionConcurrency: cfg.Pipeline.SectionConcurrency,
		MinSectionChars:    cfg.Pipeline.MinSectionChars,
		StageTimeout:       cfg.Pipeline.StageTimeout,
		PollInterval:       cfg.Pipeline.PollInterval,
		PollMaxWait:        cfg.Pipeline.PollMaxWait,
	})
	return runner, docClient, func() { _ = llmClient.Close() }, nil
}
