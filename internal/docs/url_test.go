package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"edit url", "https://docs.google.com/document/d/1AbC-d_EF/edit", "1AbC-d_EF", false},
		{"query and fragment", "https://docs.google.com/document/d/1AbC/edit?usp=sharing#heading=h.1", "1AbC", false},
		{"multi account path", "https://docs.google.com/document/u/1/d/XYZ123/edit", "XYZ123", false},
		{"surrounding whitespace", "  https://docs.google.com/document/d/abc/view  ", "abc", false},
		{"empty", "", "", true},
		{"other host", "https://example.com/document/d/abc/edit", "", true},
		{"spreadsheet", "https://docs.google.com/spreadsheets/d/abc/edit", "", true},
		{"garbage", "::not a url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocumentID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentURL(t *testing.T) {
	id, err := ParseDocumentID(DocumentURL("abc_123"))
	require.NoError(t, err)
	assert.Equal(t, "abc_123", id)
}
