package docs

import (
	"sort"
	"strings"
	"unicode/utf16"

	gdocs "google.golang.org/api/docs/v1"

	"github.com/jonathan/doc-feedback/internal/types"
)

// feedbackColor is the dark blue used for inserted feedback text
var feedbackColor = &gdocs.OptionalColor{
	Color: &gdocs.Color{RgbColor: &gdocs.RgbColor{Red: 0.1, Green: 0.3, Blue: 0.6}},
}

// toDocument flattens the body paragraphs of a Docs API document, descending into tables
func toDocument(id string, d *gdocs.Document) *types.Document {
	doc := &types.Document{ID: id, Title: d.Title, RevisionID: d.RevisionId}
	if d.Body != nil {
		doc.Paragraphs = collectParagraphs(d.Body.Content, nil)
	}
	return doc
}

func collectParagraphs(elements []*gdocs.StructuralElement, out []types.Paragraph) []types.Paragraph {
	for _, el := range elements {
		switch {
		case el.Paragraph != nil:
			out = append(out, convertParagraph(el))
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					out = collectParagraphs(cell.Content, out)
				}
			}
		}
	}
	return out
}

func convertParagraph(el *gdocs.StructuralElement) types.Paragraph {
	var sb strings.Builder
	for _, pe := range el.Paragraph.Elements {
		if pe.TextRun != nil {
			sb.WriteString(pe.TextRun.Content)
		}
	}
	p := types.Paragraph{
		Text:       sb.String(),
		StartIndex: el.StartIndex,
		EndIndex:   el.EndIndex,
	}
	if el.Paragraph.ParagraphStyle != nil {
		p.NamedStyle = el.Paragraph.ParagraphStyle.NamedStyleType
	}
	return p
}

// utf16Len returns the length of s in UTF-16 code units, the unit of Docs API indices
func utf16Len(s string) int64 {
	return int64(len(utf16.Encode([]rune(s))))
}

// buildInsertRequests orders items so that each insertion leaves the offsets of the
// remaining ones untouched: highest offset first, and for equal offsets the later item
// first so the final reading order matches the input order. It also returns how many
// items produced requests.
//
// An inserted paragraph takes the style of the paragraph it lands in, so each block is
// reset to normal text. The reset skips leading newlines, which end the paragraph the
// block was inserted into.
func buildInsertRequests(items []types.FeedbackItem) ([]*gdocs.Request, int) {
	ordered := make([]int, len(items))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		ia, ib := items[ordered[a]], items[ordered[b]]
		if ia.InsertAt != ib.InsertAt {
			return ia.InsertAt > ib.InsertAt
		}
		return ordered[a] > ordered[b]
	})

	requests := make([]*gdocs.Request, 0, len(items)*3)
	written := 0
	for _, idx := range ordered {
		item := items[idx]
		if item.Content == "" {
			continue
		}
		written++
		end := item.InsertAt + utf16Len(item.Content)
		requests = append(requests,
			&gdocs.Request{InsertText: &gdocs.InsertTextRequest{
				Text:     item.Content,
				Location: &gdocs.Location{Index: item.InsertAt},
			}},
			&gdocs.Request{UpdateTextStyle: &gdocs.UpdateTextStyleRequest{
				Range:     &gdocs.Range{StartIndex: item.InsertAt, EndIndex: end},
				TextStyle: &gdocs.TextStyle{Italic: true, ForegroundColor: feedbackColor},
				Fields:    "italic,foregroundColor",
			}},
		)

		// A newline is one byte and one UTF-16 unit
		start := item.InsertAt + int64(len(item.Content)-len(strings.TrimLeft(item.Content, "\n")))
		if start < end {
			requests = append(requests, &gdocs.Request{UpdateParagraphStyle: &gdocs.UpdateParagraphStyleRequest{
				Range:          &gdocs.Range{StartIndex: start, EndIndex: end},
				ParagraphStyle: &gdocs.ParagraphStyle{NamedStyleType: "NORMAL_TEXT"},
				Fields:         "namedStyleType",
			}})
		}
	}
	return requests, written
}
