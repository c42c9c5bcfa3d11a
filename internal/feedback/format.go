package feedback

import (
	"strings"

	"github.com/jonathan/doc-feedback/internal/types"
)

// softBreak is a line break inside a paragraph in Google Docs, so a feedback block stays one paragraph
const softBreak = "\v"

// Overview is the structured document-level feedback returned by the model
type Overview struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	NextSteps    []string `json:"next_steps"`
}

// OverviewBlock renders an overview for insertion at the start of the body.
// The trailing newline ends the block's paragraph before the original first paragraph.
func OverviewBlock(o Overview) string {
	lines := []string{types.FeedbackMarker + " 총평", singleLine(o.Summary)}
	lines = appendList(lines, "잘한 점", o.Strengths)
	lines = appendList(lines, "개선할 점", o.Improvements)
	lines = appendList(lines, "다음 단계", o.NextSteps)
	return strings.Join(lines, softBreak) + "\n"
}

// SectionBlock renders section feedback for insertion at the end of the section's last paragraph.
// The leading newline starts a new paragraph after the student's text.
func SectionBlock(kind types.FeedbackType, text string) string {
	label := "평가"
	if kind == types.FeedbackGuide {
		label = "작성 안내"
	}
	return "\n" + types.FeedbackMarker + " " + label + softBreak + singleLine(text)
}

func appendList(lines []string, heading string, items []string) []string {
	if len(items) == 0 {
		return lines
	}
	lines = append(lines, heading)
	for _, item := range items {
		lines = append(lines, "- "+singleLine(item))
	}
	return lines
}

// singleLine replaces hard line breaks so generated text cannot split the block into several paragraphs
func singleLine(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	return strings.ReplaceAll(s, "\n", softBreak)
}
