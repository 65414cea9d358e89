package domain

// Message is one entry in a session timeline. Only Text and Pending change
// after creation, and only through an update by ID.
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"created_at"`
	Pending   bool      `json:"pending"`
}

// ElementRef addresses one node of a rendered document.
type ElementRef struct {
	Selector         string `json:"selector"`
	TagName          string `json:"tagName"`
	ID               string `json:"id"`
	ClassNames       string `json:"className"`
	InnerTextPreview string `json:"innerText"`
}

// ConversationState is the mutable record the state machine owns.
type ConversationState struct {
	Step                Step           `json:"step"`
	UploadedFiles       []UploadedFile `json:"uploaded_files"`
	DataScope           Scope          `json:"data_scope"`
	DesignBrief         string         `json:"design_brief,omitempty"`
	Document            string         `json:"document,omitempty"`
	DocumentKind        DocumentKind   `json:"document_kind,omitempty"`
	SelectedElement     *ElementRef    `json:"selected_element,omitempty"`
	DocumentTitle       string         `json:"document_title,omitempty"`
	DocumentDescription string         `json:"document_description,omitempty"`

	// LoadedDocumentID is set when the document came from the gateway.
	LoadedDocumentID DocumentID `json:"loaded_document_id,omitempty"`
}

// Session bundles a conversation state with its timeline and the analysis
// that every later generation call reads from.
type Session struct {
	ID        SessionID         `json:"id"`
	CreatedAt Timestamp         `json:"created_at"`
	UpdatedAt Timestamp         `json:"updated_at"`
	State     ConversationState `json:"state"`
	Messages  []Message         `json:"messages"`
	Analysis  *DataAnalysis     `json:"analysis,omitempty"`
	Busy      bool              `json:"busy"`
}

// Clone returns a deep enough copy for readers outside the state machine.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.State.UploadedFiles = append([]UploadedFile(nil), s.State.UploadedFiles...)
	if s.State.SelectedElement != nil {
		ref := *s.State.SelectedElement
		out.State.SelectedElement = &ref
	}
	if s.Analysis != nil {
		a := *s.Analysis
		out.Analysis = &a
	}
	return &out
}
