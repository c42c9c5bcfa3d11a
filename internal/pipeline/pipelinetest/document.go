package pipelinetest

import (
	"unicode/utf16"

	"github.com/jonathan/doc-feedback/internal/types"
)

// BuildDocument lays paragraphs out from index 1 with UTF-16 offsets, as Google Docs does
func BuildDocument(revision string, paragraphs ...types.Paragraph) *types.Document {
	doc := &types.Document{ID: "doc-1", Title: "Test worksheet", RevisionID: revision}
	idx := int64(1)
	for _, p := range paragraphs {
		n := int64(len(utf16.Encode([]rune(p.Text))))
		p.StartIndex = idx
		p.EndIndex = idx + n
		idx += n
		doc.Paragraphs = append(doc.Paragraphs, p)
	}
	return doc
}

// WorksheetDocument is a three-step worksheet with one step left blank
func WorksheetDocument() *types.Document {
	return BuildDocument("rev-1",
		types.Paragraph{Text: "광합성 탐구 워크시트\n", NamedStyle: "TITLE"},
		types.Paragraph{Text: "1. 실험 목적\n"},
		types.Paragraph{Text: "빛의 세기가 광합성 속도에 미치는 영향을 알아본다.\n"},
		types.Paragraph{Text: "2. 가설\n"},
		types.Paragraph{Text: "______________________\n"},
		types.Paragraph{Text: "3. 결과\n"},
		types.Paragraph{Text: "빛이 강할수록 기포가 더 많이 발생하였다. 약한 빛에서는 기포가 거의 없었다.\n"},
	)
}
