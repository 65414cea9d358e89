package domain

// DocumentKind tags where a generated document came from.
type DocumentKind string

const (
	DocumentValid    DocumentKind = "valid"
	DocumentFallback DocumentKind = "fallback"
)

const (
	FallbackTitle       = "Untitled Dashboard"
	FallbackDescription = "No description provided."
)

// GeneratedDocument is the outcome of a synthesis or edit call.
type GeneratedDocument struct {
	Kind        DocumentKind
	Body        string
	Title       string
	Description string
}

// DocumentRecord is a saved dashboard.
type DocumentRecord struct {
	ID           DocumentID `json:"id"`
	CreatedAt    Timestamp  `json:"created_at"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DocumentBody string     `json:"document_body,omitempty"`
}

// SaveRequest carries a document to the gateway. ReplaceID asks the gateway
// to overwrite an existing record instead of inserting.
type SaveRequest struct {
	Title       string
	Description string
	Body        string
	ReplaceID   DocumentID
}

// ExportFile is a standalone download of the current document.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
