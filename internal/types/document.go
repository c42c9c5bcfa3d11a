package types

// Document is the text content of an external document with positional offsets.
// Offsets are the document backend's native indices (UTF-16 code units for Google Docs).
type Document struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	RevisionID string      `json:"revision_id"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Paragraph is one block of text in a document
type Paragraph struct {
	Text       string `json:"text"`
	StartIndex int64  `json:"start_index"`
	EndIndex   int64  `json:"end_index"`
	// NamedStyle is the backend's paragraph style, e.g. "HEADING_2" or "NORMAL_TEXT"
	NamedStyle string `json:"named_style,omitempty"`
}

// Text returns the concatenated text of every paragraph
func (d *Document) Text() string {
	n := 0
	for _, p := range d.Paragraphs {
		n += len(p.Text)
	}
	buf := make([]byte, 0, n)
	for _, p := range d.Paragraphs {
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// BodyStart returns the first insertable offset of the document body
func (d *Document) BodyStart() int64 {
	if len(d.Paragraphs) == 0 {
		return 1
	}
	return d.Paragraphs[0].StartIndex
}

// Section is a heading (or step marker) and the paragraphs that follow it
type Section struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	StartIndex int64  `json:"start_index"`
	EndIndex   int64  `json:"end_index"`
	IsHeading  bool   `json:"is_heading"`
	// Empty marks a template section the student has not filled in yet
	Empty bool `json:"empty"`
}

// FeedbackType distinguishes the kinds of inserted feedback
type FeedbackType string

const (
	FeedbackOverview   FeedbackType = "overview"
	FeedbackGuide      FeedbackType = "guide"
	FeedbackEvaluation FeedbackType = "evaluation"
)

// FeedbackItem is a block of feedback to insert at a document offset
type FeedbackItem struct {
	Type     FeedbackType `json:"type"`
	Content  string       `json:"content"`
	InsertAt int64        `json:"insert_at"`
}

// RevisionState is the opaque change-detection snapshot of a document
type RevisionState struct {
	RevisionID   string `json:"revision_id"`
	CommentCount int    `json:"comment_count"`
}

// Differs reports whether either token changed from the baseline
func (r RevisionState) Differs(baseline RevisionState) bool {
	return r.RevisionID != baseline.RevisionID || r.CommentCount != baseline.CommentCount
}

// FeedbackMarker prefixes every inserted feedback block so later runs can recognise it
const FeedbackMarker = "[AI 피드백]"
