package domain

import "context"

// Prompt is a system instruction plus the user content for one call.
type Prompt struct {
	System string
	User   string
	// JSON asks the backend for a JSON response body when supported.
	JSON bool
}

// GenerationBackend is the raw text-in/text-out model endpoint.
type GenerationBackend interface {
	Generate(ctx context.Context, model ModelKind, prompt Prompt) (string, error)
}

// DocumentStore is the persistence gateway for saved dashboards.
type DocumentStore interface {
	Save(ctx context.Context, req SaveRequest) (DocumentID, error)
	Load(ctx context.Context, id DocumentID) (*DocumentRecord, error)
	// List returns records without bodies, newest first.
	List(ctx context.Context) ([]*DocumentRecord, error)
	Delete(ctx context.Context, id DocumentID) error
}

// SessionStore keeps conversation snapshots between requests.
type SessionStore interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// HasSession reports whether a snapshot exists without decoding it.
	HasSession(ctx context.Context, id SessionID) (bool, error)
	DeleteSession(ctx context.Context, id SessionID) error
}
