package types

import (
	"sort"
	"strings"
)

// Genre selects the rubric and prompt template used for a document
type Genre struct {
	// Name is the canonical genre label stored on the job
	Name string
	// Key names the rubric entry in the prompt files
	Key string
	// EstimatedMinutes is the expected end-to-end runtime
	EstimatedMinutes int
}

var genres = []Genre{
	{Name: "워크시트", Key: "worksheet", EstimatedMinutes: 5},
	{Name: "보고서", Key: "report", EstimatedMinutes: 8},
	{Name: "에세이", Key: "essay", EstimatedMinutes: 6},
	{Name: "발표", Key: "presentation", EstimatedMinutes: 6},
}

// LookupGenre resolves a genre by its Korean label or English key, ignoring case and spaces
func LookupGenre(label string) (Genre, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	if norm == "" {
		return Genre{}, false
	}
	for _, g := range genres {
		if norm == g.Name || norm == g.Key {
			return g, true
		}
	}
	return Genre{}, false
}

// GenreNames returns every accepted genre label, sorted
func GenreNames() []string {
	names := make([]string, 0, len(genres)*2)
	for _, g := range genres {
		names = append(names, g.Name, g.Key)
	}
	sort.Strings(names)
	return names
}
