package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupGenre(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		minutes int
		ok      bool
	}{
		{"워크시트", "워크시트", 5, true},
		{"Worksheet", "워크시트", 5, true},
		{"  report ", "보고서", 8, true},
		{"에세이", "에세이", 6, true},
		{"poem", "", 0, false},
		{"", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			g, ok := LookupGenre(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, g.Name)
			assert.Equal(t, tt.minutes, g.EstimatedMinutes)
		})
	}
}

func TestGenreNames(t *testing.T) {
	names := GenreNames()
	assert.Contains(t, names, "워크시트")
	assert.Contains(t, names, "essay")
}

func TestRevisionState_Differs(t *testing.T) {
	base := RevisionState{RevisionID: "r1", CommentCount: 2}
	assert.False(t, base.Differs(base))
	assert.True(t, RevisionState{RevisionID: "r2", CommentCount: 2}.Differs(base))
	assert.True(t, RevisionState{RevisionID: "r1", CommentCount: 3}.Differs(base))
}

func TestDocument_TextAndBodyStart(t *testing.T) {
	doc := &Document{Paragraphs: []Paragraph{
		{Text: "Title\n", StartIndex: 1, EndIndex: 7},
		{Text: "Body\n", StartIndex: 7, EndIndex: 12},
	}}
	assert.Equal(t, "Title\nBody\n", doc.Text())
	assert.Equal(t, int64(1), doc.BodyStart())
	assert.Equal(t, int64(1), (&Document{}).BodyStart())
}
