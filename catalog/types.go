package catalog

// Question lifecycle statuses.
const (
	StatusExtracted = "extracted"
	StatusParsed    = "parsed"
	StatusReviewed  = "reviewed"
	StatusArchived  = "archived"
)

// ValidStatus reports whether s is a recognized question status.
func ValidStatus(s string) bool {
	switch s {
	case StatusExtracted, StatusParsed, StatusReviewed, StatusArchived:
		return true
	}
	return false
}

// Source is a study platform questions are extracted from.
type Source struct {
	SourceID    int64  `json:"source_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Question is one extracted question, uniquely identified within its
// source by SourceQuestionKey.
type Question struct {
	QuestionID        int64  `json:"question_id"`
	SourceID          int64  `json:"source_id"`
	SourceQuestionKey string `json:"source_question_key"`
	RawHTML           string `json:"raw_html"`
	RawMetadataJSON   string `json:"raw_metadata_json"`
	Status            string `json:"status"`
	ExtractionPath    string `json:"extraction_path"`
	Title             string `json:"title,omitempty"`
	PreviewMarkdown   string `json:"preview_markdown,omitempty"`
	ParentID          *int64 `json:"parent_id,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// Media is a binary attachment relocated under the canonical media root.
// RelativePath is relative to that root so the catalog stays portable.
type Media struct {
	MediaID      int64  `json:"media_id"`
	QuestionID   int64  `json:"question_id"`
	MediaRole    string `json:"media_role"`
	MediaType    string `json:"media_type"`
	MimeType     string `json:"mime_type"`
	RelativePath string `json:"relative_path"`
	CreatedAt    int64  `json:"created_at"`
}

// LogRecord is one persisted log line. Append-only.
type LogRecord struct {
	LogID      int64  `json:"log_id"`
	Level      string `json:"level"`
	LoggerName string `json:"logger_name"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}
