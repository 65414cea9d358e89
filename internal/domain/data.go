package domain

// RecordsKind tags how an upload was decoded.
type RecordsKind string

const (
	RecordsCSV         RecordsKind = "csv"
	RecordsJSON        RecordsKind = "json"
	RecordsUnsupported RecordsKind = "unsupported"
)

// Records is the decoded content of an upload. Rows is empty for
// RecordsUnsupported.
type Records struct {
	Kind    RecordsKind      `json:"kind"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
}

type UploadedFile struct {
	ID         FileID  `json:"id"`
	Name       string  `json:"name"`
	MimeType   string  `json:"mime_type"`
	SizeBytes  int64   `json:"size_bytes"`
	RawContent []byte  `json:"raw_content"`
	Records    Records `json:"records"`
}

// IsText reports whether the raw content can be previewed as text.
func (f UploadedFile) IsText() bool {
	return f.Records.Kind != RecordsUnsupported
}

type DataAnalysis struct {
	Summary          string   `json:"summary"`
	Columns          []string `json:"columns"`
	RowCountEstimate int      `json:"rowCount"`
	Suggestions      []string `json:"suggestions"`
	KeyInsights      []string `json:"keyInsights"`
}
