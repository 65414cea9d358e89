package httpadapter

import (
	"time"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type scopeRequest struct {
	Scope string `json:"scope" validate:"required,oneof=all insights"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

type saveRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type loadRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Pending   bool      `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
}

type fileResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MimeType  string   `json:"mime_type"`
	SizeBytes int64    `json:"size_bytes"`
	Kind      string   `json:"kind"`
	Columns   []string `json:"columns,omitempty"`
	Rows      int      `json:"rows"`
}

type sessionResponse struct {
	ID                  string               `json:"id"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	Step                string               `json:"step"`
	Busy                bool                 `json:"busy"`
	DataScope           string               `json:"data_scope,omitempty"`
	DesignBrief         string               `json:"design_brief,omitempty"`
	HasDocument         bool                 `json:"has_document"`
	DocumentKind        string               `json:"document_kind,omitempty"`
	DocumentTitle       string               `json:"document_title,omitempty"`
	DocumentDescription string               `json:"document_description,omitempty"`
	LoadedDocumentID    string               `json:"loaded_document_id,omitempty"`
	SelectedElement     *domain.ElementRef   `json:"selected_element"`
	Files               []fileResponse       `json:"files"`
	Analysis            *domain.DataAnalysis `json:"analysis,omitempty"`
	Messages            []messageResponse    `json:"messages"`
}

type saveResponse struct {
	DocumentID string          `json:"document_id"`
	Session    sessionResponse `json:"session"`
}

type dashboardResponse struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Document    string    `json:"document,omitempty"`
}

type errorResponse struct {
	Error   string           `json:"error"`
	Session *sessionResponse `json:"session,omitempty"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	st := s.State
	resp := sessionResponse{
		ID:                  string(s.ID),
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
		Step:                string(st.Step),
		Busy:                s.Busy,
		DataScope:           string(st.DataScope),
		DesignBrief:         st.DesignBrief,
		HasDocument:         st.Document != "",
		DocumentKind:        string(st.DocumentKind),
		DocumentTitle:       st.DocumentTitle,
		DocumentDescription: st.DocumentDescription,
		LoadedDocumentID:    string(st.LoadedDocumentID),
		SelectedElement:     st.SelectedElement,
		Files:               make([]fileResponse, 0, len(st.UploadedFiles)),
		Analysis:            s.Analysis,
		Messages:            make([]messageResponse, 0, len(s.Messages)),
	}
	for _, f := range st.UploadedFiles {
		resp.Files = append(resp.Files, fileResponse{
			ID:        string(f.ID),
			Name:      f.Name,
			MimeType:  f.MimeType,
			SizeBytes: f.SizeBytes,
			Kind:      string(f.Records.Kind),
			Columns:   f.Records.Columns,
			Rows:      len(f.Records.Rows),
		})
	}
	for _, m := range s.Messages {
		resp.Messages = append(resp.Messages, messageResponse{
			ID:        string(m.ID),
			Role:      string(m.Role),
			Text:      m.Text,
			Pending:   m.Pending,
			CreatedAt: m.CreatedAt,
		})
	}
	return resp
}

func toDashboardResponse(rec *domain.DocumentRecord) dashboardResponse {
	return dashboardResponse{
		ID:          string(rec.ID),
		CreatedAt:   rec.CreatedAt,
		Title:       rec.Title,
		Description: rec.Description,
		Document:    rec.DocumentBody,
	}
}
