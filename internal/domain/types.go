package domain

import "time"

type SessionID string
type MessageID string
type FileID string
type DocumentID string

type Role string

const (
	RoleUser    Role = "user"
	RoleAgent   Role = "agent"
	RoleSuccess Role = "success"
)

// Step is the position of a session in the upload → preview flow.
type Step string

const (
	StepUpload        Step = "upload"
	StepDataSelection Step = "data-selection"
	StepDesign        Step = "design"
	StepGeneration    Step = "generation"
	StepPreview       Step = "preview"
)

// Scope limits generation to every column or to the distilled insights.
type Scope string

const (
	ScopeUnset    Scope = ""
	ScopeAll      Scope = "all"
	ScopeInsights Scope = "insights"
)

func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeAll:
		return ScopeAll, true
	case ScopeInsights:
		return ScopeInsights, true
	default:
		return ScopeUnset, false
	}
}

// ModelKind selects one of the two logical generation endpoints.
type ModelKind string

const (
	ModelReasoning ModelKind = "reasoning"
	ModelCoding    ModelKind = "coding"
)

type Timestamp = time.Time
