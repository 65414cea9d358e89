package domain

import "errors"

var (
	ErrBusy               = errors.New("another request is still in progress")
	ErrInvalidStep        = errors.New("operation not allowed at the current step")
	ErrNoFiles            = errors.New("no files uploaded")
	ErrEmptyMessage       = errors.New("message text is empty")
	ErrInvalidScope       = errors.New("scope must be all or insights")
	ErrTooManyFiles       = errors.New("too many files uploaded")
	ErrNoAnalysis         = errors.New("no data analysis available")
	ErrNoDocument         = errors.New("no document to work on")
	ErrSessionNotFound    = errors.New("session not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrBackendOverloaded  = errors.New("generation backend overloaded")
	ErrBackendUnavailable = errors.New("generation backend not configured")

	ErrNoStructuredPayload = errors.New("no structured payload found")
	ErrMalformedDocument   = errors.New("response is not a complete document")
)
