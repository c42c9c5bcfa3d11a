package docs

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var documentPathPattern = regexp.MustCompile(`/document/(?:u/\d+/)?d/([a-zA-Z0-9_-]+)`)

// ParseDocumentID extracts the document ID from a Google Docs URL
func ParseDocumentID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("document URL is empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid document URL: %w", err)
	}
	if u.Host != "docs.google.com" {
		return "", fmt.Errorf("not a Google Docs URL: %s", u.Host)
	}

	m := documentPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("no document ID in URL path %q", u.Path)
	}
	return m[1], nil
}

// DocumentURL returns the canonical edit URL for a document ID
func DocumentURL(documentID string) string {
	return "https://docs.google.com/document/d/" + documentID + "/edit"
}
