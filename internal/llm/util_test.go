package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"json code block", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"generic code block", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"other language tag", "```javascript\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"plain JSON", `{"key": "value"}`, `{"key": "value"}`},
		{"surrounding whitespace", "\n\n  {\"a\": 1}  \n", `{"a": 1}`},
		{"fence without newline", "```{\"a\": 1}```", `{"a": 1}`},
		{"array on first line", "```[1, 2]\n```", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractTextFromResponse(t *testing.T) {
	t.Run("joins text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("잘 "), genai.Text("했어요")}},
		}}}
		text, err := extractTextFromResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "잘 했어요", text)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := extractTextFromResponse(&genai.GenerateContentResponse{})
		assert.Error(t, err)
	})

	t.Run("safety block", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
		_, err := extractTextFromResponse(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "safety")
	})

	t.Run("non-text parts only", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
		}}}
		_, err := extractTextFromResponse(resp)
		assert.Error(t, err)
	})
}
