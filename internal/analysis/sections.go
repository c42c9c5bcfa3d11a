// Package analysis classifies the structure of a student document before feedback is generated.
package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/doc-feedback/internal/types"
)

const (
	// MinMeaningfulChars is the number of non-space, non-underscore characters below which a section is empty
	MinMeaningfulChars = 20
	// fillerRunLength is the shortest run of underscores treated as a fill-in blank
	fillerRunLength = 3
	// maxMarkerHeadingRunes bounds how long a step-marker line may be and still count as a heading
	maxMarkerHeadingRunes = 60
)

// stepMarker matches worksheet-style step prefixes: "1.", "2)", "3단계", "Step 4", "①", "가.", "■", "[목표]"
var stepMarker = regexp.MustCompile(`^\s*(?:\d{1,2}\s*[.)]|\d{1,2}\s*단계|(?i:step)\s*\d+|[①-⑳]|[가나다라마바사아자차카타파하]\s*[.)]|[■□▶●◆]|\[[^\]]{1,30}\])`)

var fillerRun = regexp.MustCompile(fmt.Sprintf(`_{%d,}`, fillerRunLength))

// Result is the outcome of content analysis
type Result struct {
	Sections     []types.Section
	HeadingCount int
	EmptyCount   int
}

// Analyze splits doc into sections and classifies each one.
// A document without any meaningful text is an error because there is nothing to give feedback on.
func Analyze(doc *types.Document) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	if MeaningfulLength(doc.Text()) == 0 {
		return nil, fmt.Errorf("document %s is empty", doc.ID)
	}

	sections := ExtractSections(doc)
	result := &Result{Sections: sections}
	for _, s := range sections {
		if s.IsHeading {
			result.HeadingCount++
		}
		if s.Empty {
			result.EmptyCount++
		}
	}
	return result, nil
}

// ExtractSections groups paragraphs under the nearest preceding heading or step marker.
// Paragraphs before the first heading form an untitled section.
// Previously inserted feedback blocks are skipped.
func ExtractSections(doc *types.Document) []types.Section {
	var sections []types.Section
	var current *types.Section
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(body.String())
		current.Empty = IsEmptySection(current.Body)
		sections = append(sections, *current)
		current = nil
		body.Reset()
	}

	for _, p := range doc.Paragraphs {
		if strings.HasPrefix(strings.TrimSpace(p.Text), types.FeedbackMarker) {
			continue
		}

		if IsHeading(p) {
			flush()
			current = &types.Section{
				Title:      strings.TrimSpace(p.Text),
				StartIndex: p.StartIndex,
				EndIndex:   p.EndIndex,
				IsHeading:  true,
			}
			continue
		}

		if current == nil {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			current = &types.Section{StartIndex: p.StartIndex, EndIndex: p.EndIndex}
		}
		body.WriteString(p.Text)
		current.EndIndex = p.EndIndex
	}
	flush()

	return sections
}

// IsHeading reports whether a paragraph opens a new section, either by
// paragraph style or by a short line starting with a step marker
func IsHeading(p types.Paragraph) bool {
	if strings.HasPrefix(p.NamedStyle, "HEADING_") || p.NamedStyle == "TITLE" || p.NamedStyle == "SUBTITLE" {
		return strings.TrimSpace(p.Text) != ""
	}
	text := strings.TrimSpace(p.Text)
	if text == "" || utf8.RuneCountInString(text) > maxMarkerHeadingRunes {
		return false
	}
	return stepMarker.MatchString(text)
}

// IsEmptySection reports whether a section body is unfilled template content:
// fewer than MinMeaningfulChars meaningful characters, or blanks of underscores
// that outweigh the written text.
func IsEmptySection(text string) bool {
	meaningful, underscores := countChars(text)
	if meaningful < MinMeaningfulChars {
		return true
	}
	return fillerRun.MatchString(text) && underscores >= meaningful
}

// MeaningfulLength counts characters that are neither whitespace nor underscores
func MeaningfulLength(text string) int {
	meaningful, _ := countChars(text)
	return meaningful
}

// IsTrivial reports whether a section is too short to be worth a feedback call
func IsTrivial(s types.Section, minChars int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s.Title+s.Body)) < minChars
}

func countChars(text string) (meaningful, underscores int) {
	for _, r := range text {
		switch {
		case r == '_':
			underscores++
		case unicode.IsSpace(r):
		default:
			meaningful++
		}
	}
	return meaningful, underscores
}
