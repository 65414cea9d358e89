package conversation

import "github.com/PabloGalante/agent-dash/internal/domain"

const (
	ExportFilename    = "dashboard.html"
	ExportContentType = "text/html; charset=utf-8"
)

// Export packages document as a standalone file. The body is the document
// bytes unchanged, so equal documents export identically.
func Export(document string) domain.ExportFile {
	return domain.ExportFile{
		Filename:    ExportFilename,
		ContentType: ExportContentType,
		Body:        []byte(document),
	}
}
