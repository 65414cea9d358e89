package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/agent-dash/internal/app/targeting"
	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

// Machine owns one session. Every exported method takes the lock, validates
// the current step and busy flag, and either mutates synchronously or
// dispatches exactly one backend call. The lock is released while the call
// is in flight so readers see the pending placeholder.
type Machine struct {
	mu      sync.Mutex
	session *domain.Session
	svc     *Service

	// designSeq invalidates deferred design prompts from earlier scope choices.
	designSeq int
	// selectionSeq tells an edit whether the selection it consumed is still
	// the current one when it settles.
	selectionSeq int
}

var errCallPanicked = errors.New("internal error")

func (m *Machine) ID() domain.SessionID {
	return m.session.ID
}

// Snapshot returns a copy of the session safe to read without the lock.
func (m *Machine) Snapshot() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

func (m *Machine) busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Busy
}

func (m *Machine) logger(ctx context.Context, op string) *slog.Logger {
	ctx = observability.WithSessionID(ctx, string(m.session.ID))
	return observability.LoggerFromContext(ctx).With("op", op, "step", m.session.State.Step)
}

// ─────────────────────────────────────────
// Timeline helpers (lock held)
// ─────────────────────────────────────────

func (m *Machine) appendMessage(role domain.Role, text string, pending bool) domain.MessageID {
	msg := domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		Role:      role,
		Text:      text,
		CreatedAt: m.svc.now(),
		Pending:   pending,
	}
	m.session.Messages = append(m.session.Messages, msg)
	m.session.UpdatedAt = msg.CreatedAt
	return msg.ID
}

// settleMessage rewrites a placeholder in place.
func (m *Machine) settleMessage(id domain.MessageID, role domain.Role, text string) {
	for i := range m.session.Messages {
		if m.session.Messages[i].ID == id {
			m.session.Messages[i].Role = role
			m.session.Messages[i].Text = text
			m.session.Messages[i].Pending = false
			break
		}
	}
	m.session.UpdatedAt = m.svc.now()
}

// transition moves to step and clears the selection whenever the session
// leaves preview.
func (m *Machine) transition(ctx context.Context, to domain.Step) {
	from := m.session.State.Step
	m.session.State.Step = to
	if to != domain.StepPreview {
		m.session.State.SelectedElement = nil
	}
	if from != to {
		m.svc.metrics.IncTransition(string(from), string(to))
		m.logger(ctx, "transition").Info("step changed", "from", from, "to", to)
	}
}

func (m *Machine) persist(ctx context.Context) {
	if m.svc.sessions == nil {
		return
	}
	if err := m.svc.sessions.SaveSession(ctx, m.session); err != nil {
		m.logger(ctx, "persist").Error("failed to save session snapshot", "error", err)
	}
}

// begin marks the session busy and publishes the pending placeholder. The
// caller must hold the lock and must release it before the backend call.
func (m *Machine) begin(ctx context.Context, placeholder string) domain.MessageID {
	m.session.Busy = true
	id := m.appendMessage(domain.RoleAgent, placeholder, true)
	m.persist(ctx)
	return id
}

func (m *Machine) requireGenerator() error {
	if m.svc.gen == nil {
		return fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, m.svc.unavailableReason)
	}
	return nil
}

// recoverCall is deferred right after the lock is released for a backend
// or gateway call. When that call panics the session is made usable again:
// busy is cleared, settle runs with the lock held, and the panic continues.
func (m *Machine) recoverCall(ctx context.Context, op string, settle func()) {
	r := recover()
	if r == nil {
		return
	}
	m.mu.Lock()
	m.session.Busy = false
	settle()
	m.persist(ctx)
	m.logger(ctx, op).Error("call panicked", "panic", r)
	m.mu.Unlock()
	panic(r)
}

// ─────────────────────────────────────────
// Upload
// ─────────────────────────────────────────

// Upload replaces the current batch with files and analyzes it. On success
// the session moves to data-selection with scope, brief, document and
// selection reset; on failure the previous state is kept.
func (m *Machine) Upload(ctx context.Context, files []domain.UploadedFile) (*domain.Session, error) {
	m.mu.Lock()
	if err := m.guardUpload(files); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	log := m.logger(ctx, "upload")
	log.Info("analyzing upload batch", "files", len(files))
	placeholder := m.begin(ctx, analyzingText)
	m.mu.Unlock()
	defer m.recoverCall(ctx, "upload", func() {
		m.settleMessage(placeholder, domain.RoleAgent, analysisFailedText)
	})

	analysis, err := m.svc.gen.Analyze(context.WithoutCancel(ctx), files)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Busy = false

	if err != nil {
		log.Error("analysis failed", "error", err)
		m.settleMessage(placeholder, domain.RoleAgent, analysisFailedText)
		m.persist(ctx)
		return m.session.Clone(), nil
	}

	st := &m.session.State
	st.UploadedFiles = append([]domain.UploadedFile(nil), files...)
	st.DataScope = domain.ScopeUnset
	st.DesignBrief = ""
	st.Document = ""
	st.DocumentKind = ""
	st.DocumentTitle = ""
	st.DocumentDescription = ""
	st.LoadedDocumentID = ""
	m.session.Analysis = &analysis
	m.designSeq++
	m.transition(ctx, domain.StepDataSelection)

	m.settleMessage(placeholder, domain.RoleAgent, analysisSummary(len(files), analysis))
	m.persist(ctx)
	m.logger(ctx, "upload").Info("analysis stored", "columns", len(analysis.Columns), "rows", analysis.RowCountEstimate)
	return m.session.Clone(), nil
}

func (m *Machine) guardUpload(files []domain.UploadedFile) error {
	if m.session.Busy {
		return domain.ErrBusy
	}
	if len(files) == 0 {
		return domain.ErrNoFiles
	}
	if m.svc.maxFiles > 0 && len(files) > m.svc.maxFiles {
		return fmt.Errorf("%w: got %d, limit is %d", domain.ErrTooManyFiles, len(files), m.svc.maxFiles)
	}
	return m.requireGenerator()
}

// ─────────────────────────────────────────
// Scope
// ─────────────────────────────────────────

// ChooseScope records the data scope, acknowledges it, and schedules the
// design-brief prompt. The step moves to design when that prompt is
// delivered.
func (m *Machine) ChooseScope(ctx context.Context, scope domain.Scope) (*domain.Session, error) {
	m.mu.Lock()
	if m.session.Busy {
		m.mu.Unlock()
		return nil, domain.ErrBusy
	}
	if m.session.State.Step != domain.StepDataSelection {
		m.mu.Unlock()
		return nil, domain.ErrInvalidStep
	}
	if scope != domain.ScopeAll && scope != domain.ScopeInsights {
		m.mu.Unlock()
		return nil, domain.ErrInvalidScope
	}

	m.session.State.DataScope = scope
	ack := scopeAllText
	if scope == domain.ScopeInsights {
		ack = scopeInsightsText
	}
	m.appendMessage(domain.RoleAgent, ack, false)
	m.designSeq++
	seq := m.designSeq
	m.persist(ctx)
	m.logger(ctx, "choose_scope").Info("scope chosen", "scope", scope)
	snap := m.session.Clone()
	m.mu.Unlock()

	// Armed after unlocking: a scheduler may run the callback inline.
	detached := context.WithoutCancel(ctx)
	m.svc.scheduler.AfterFunc(m.svc.designDelay, func() {
		m.deliverDesignPrompt(detached, seq)
	})
	return snap, nil
}

func (m *Machine) deliverDesignPrompt(ctx context.Context, seq int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.designSeq || m.session.State.Step != domain.StepDataSelection {
		return
	}
	m.appendMessage(domain.RoleAgent, designPromptText, false)
	m.transition(ctx, domain.StepDesign)
	m.persist(ctx)
}

// ─────────────────────────────────────────
// Messages
// ─────────────────────────────────────────

// SendMessage appends the user's text and routes it by step: a design brief
// at design, a scoped edit in preview with a selection, a whole-document
// revision in preview without one, and a canned reply elsewhere.
func (m *Machine) SendMessage(ctx context.Context, text string) (*domain.Session, error) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	if m.session.Busy {
		m.mu.Unlock()
		return nil, domain.ErrBusy
	}
	if text == "" {
		m.mu.Unlock()
		return nil, domain.ErrEmptyMessage
	}

	st := m.session.State
	needsBackend := st.Step == domain.StepDesign || st.Step == domain.StepPreview
	if needsBackend {
		if err := m.requireGenerator(); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}
	if st.Step == domain.StepDesign && m.session.Analysis == nil {
		m.mu.Unlock()
		return nil, domain.ErrNoAnalysis
	}

	m.appendMessage(domain.RoleUser, text, false)

	switch {
	case st.Step == domain.StepDesign:
		return m.synthesize(ctx, text)
	case st.Step == domain.StepPreview && st.SelectedElement != nil:
		return m.editElement(ctx, *st.SelectedElement, text)
	case st.Step == domain.StepPreview:
		return m.revise(ctx, text)
	}

	defer m.mu.Unlock()
	switch st.Step {
	case domain.StepUpload:
		m.appendMessage(domain.RoleAgent, uploadReminderText, false)
	case domain.StepDataSelection:
		m.appendMessage(domain.RoleAgent, scopeReminderText, false)
	default:
		m.appendMessage(domain.RoleAgent, busyText, false)
	}
	m.persist(ctx)
	return m.session.Clone(), nil
}

// synthesize runs design → generation → preview. Called with the lock held;
// returns with it released.
func (m *Machine) synthesize(ctx context.Context, brief string) (*domain.Session, error) {
	st := &m.session.State
	st.DesignBrief = brief
	m.transition(ctx, domain.StepGeneration)

	analysis := *m.session.Analysis
	scope := st.DataScope
	files := st.UploadedFiles
	log := m.logger(ctx, "synthesize")
	placeholder := m.begin(ctx, generatingText)
	m.mu.Unlock()
	defer m.recoverCall(ctx, "synthesize", func() {
		m.settleMessage(placeholder, domain.RoleAgent, generationFailedText)
		m.transition(ctx, domain.StepDesign)
	})

	doc, err := m.svc.gen.Synthesize(context.WithoutCancel(ctx), analysis, scope, brief, files)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Busy = false

	if err != nil {
		log.Error("synthesis failed", "error", err)
		m.settleMessage(placeholder, domain.RoleAgent, generationFailedText)
		m.transition(ctx, domain.StepDesign)
		m.persist(ctx)
		return m.session.Clone(), nil
	}

	m.applyDocument(doc)
	st.LoadedDocumentID = ""
	m.transition(ctx, domain.StepPreview)
	st.SelectedElement = nil

	reply := generatedText
	if doc.Kind == domain.DocumentFallback {
		reply = generatedFallbackText
	}
	m.settleMessage(placeholder, domain.RoleSuccess, reply)
	m.persist(ctx)
	m.logger(ctx, "synthesize").Info("dashboard ready", "kind", doc.Kind, "title", doc.Title)
	return m.session.Clone(), nil
}

// editElement runs a scoped edit. Called with the lock held; returns with it
// released.
func (m *Machine) editElement(ctx context.Context, ref domain.ElementRef, request string) (*domain.Session, error) {
	document := m.session.State.Document
	seq := m.selectionSeq
	log := m.logger(ctx, "edit_element").With("selector", ref.Selector)
	placeholder := m.begin(ctx, fmt.Sprintf(editingText, ref.Selector))
	m.mu.Unlock()
	defer m.recoverCall(ctx, "edit_element", func() {
		if m.selectionSeq == seq {
			m.session.State.SelectedElement = nil
		}
		m.settleMessage(placeholder, domain.RoleAgent, fmt.Sprintf(editFailedText, ref.Selector))
	})

	doc, err := m.svc.gen.EditElement(context.WithoutCancel(ctx), document, ref, request)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Busy = false
	if m.selectionSeq == seq {
		m.session.State.SelectedElement = nil
	}

	if err != nil {
		log.Error("element edit failed", "error", err)
		m.settleMessage(placeholder, domain.RoleAgent, fmt.Sprintf(editFailedText, ref.Selector))
		m.persist(ctx)
		return m.session.Clone(), nil
	}

	m.applyDocument(doc)
	m.settleMessage(placeholder, domain.RoleSuccess, editedText(ref.Selector, request))
	m.persist(ctx)
	log.Info("element updated")
	return m.session.Clone(), nil
}

// revise rewrites the whole document. Called with the lock held; returns
// with it released.
func (m *Machine) revise(ctx context.Context, request string) (*domain.Session, error) {
	document := m.session.State.Document
	analysis := m.session.Analysis
	log := m.logger(ctx, "revise")
	placeholder := m.begin(ctx, revisingText)
	m.mu.Unlock()
	defer m.recoverCall(ctx, "revise", func() {
		m.settleMessage(placeholder, domain.RoleAgent, reviseFailedText)
	})

	doc, err := m.svc.gen.Revise(context.WithoutCancel(ctx), document, analysis, request)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Busy = false

	if err != nil {
		log.Error("revision failed", "error", err)
		m.settleMessage(placeholder, domain.RoleAgent, reviseFailedText)
		m.persist(ctx)
		return m.session.Clone(), nil
	}

	m.applyDocument(doc)
	m.settleMessage(placeholder, domain.RoleSuccess, revisedText(request))
	m.persist(ctx)
	log.Info("dashboard revised")
	return m.session.Clone(), nil
}

func (m *Machine) applyDocument(doc domain.GeneratedDocument) {
	st := &m.session.State
	st.Document = doc.Body
	st.DocumentKind = doc.Kind
	st.DocumentTitle = doc.Title
	st.DocumentDescription = doc.Description
}

// ─────────────────────────────────────────
// Element targeting
// ─────────────────────────────────────────

// SelectElement stores ref as the target of the next message. Only valid in
// preview; a selection made while an edit is in flight replaces the stored
// one and survives that edit.
func (m *Machine) SelectElement(ctx context.Context, ref domain.ElementRef) (*domain.Session, error) {
	ref = targeting.Normalize(ref)
	if ref.Selector == "" {
		return nil, targeting.ErrInvalidSelection
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State.Step != domain.StepPreview {
		return nil, domain.ErrInvalidStep
	}

	m.selectionSeq++
	m.session.State.SelectedElement = &ref
	m.appendMessage(domain.RoleAgent, fmt.Sprintf(selectionText, ref.Selector), false)
	m.persist(ctx)
	m.logger(ctx, "select_element").Info("element selected", "selector", ref.Selector, "tag", ref.TagName)
	return m.session.Clone(), nil
}

// HandleFrameMessage decodes a message posted by the preview frame. Unknown
// message types, and selections outside preview, are ignored and reported
// with handled=false.
func (m *Machine) HandleFrameMessage(ctx context.Context, raw []byte) (snap *domain.Session, handled bool, err error) {
	ref, ok, err := targeting.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	snap, err = m.SelectElement(ctx, ref)
	if errors.Is(err, domain.ErrInvalidStep) {
		m.logger(ctx, "frame_message").Debug("selection ignored outside preview")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// ─────────────────────────────────────────
// Export and persistence
// ─────────────────────────────────────────

// Export returns the current document as a standalone download.
func (m *Machine) Export(ctx context.Context) (domain.ExportFile, *domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State.Document == "" {
		return domain.ExportFile{}, nil, domain.ErrNoDocument
	}
	file := Export(m.session.State.Document)
	m.appendMessage(domain.RoleSuccess, exportedText, false)
	m.persist(ctx)
	return file, m.session.Clone(), nil
}

// SaveInput overrides the extracted metadata when non-empty.
type SaveInput struct {
	Title       string
	Description string
}

// Save stores the current document through the gateway. Failures are
// reported once in the timeline and returned.
func (m *Machine) Save(ctx context.Context, in SaveInput) (*domain.Session, domain.DocumentID, error) {
	m.mu.Lock()
	if m.session.Busy {
		m.mu.Unlock()
		return nil, "", domain.ErrBusy
	}
	st := m.session.State
	if st.Document == "" {
		m.mu.Unlock()
		return nil, "", domain.ErrNoDocument
	}

	req := domain.SaveRequest{
		Title:       firstNonEmpty(in.Title, st.DocumentTitle, domain.FallbackTitle),
		Description: firstNonEmpty(in.Description, st.DocumentDescription, domain.FallbackDescription),
		Body:        st.Document,
	}
	if m.svc.overwriteOnSave {
		req.ReplaceID = st.LoadedDocumentID
	}
	m.session.Busy = true
	log := m.logger(ctx, "save")
	m.mu.Unlock()
	defer m.recoverCall(ctx, "save", func() {
		m.appendMessage(domain.RoleAgent, fmt.Sprintf(saveFailedText, errCallPanicked), false)
	})

	id, err := m.svc.docs.Save(context.WithoutCancel(ctx), req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Busy = false

	if err != nil {
		log.Error("failed to save dashboard", "error", err)
		m.appendMessage(domain.RoleAgent, fmt.Sprintf(saveFailedText, err), false)
		m.persist(ctx)
		return m.session.Clone(), "", fmt.Errorf("save dashboard: %w", err)
	}

	m.session.State.LoadedDocumentID = id
	m.appendMessage(domain.RoleSuccess, fmt.Sprintf(savedText, req.Title), false)
	m.persist(ctx)
	log.Info("dashboard saved", "document_id", id, "replaced", req.ReplaceID != "")
	return m.session.Clone(), id, nil
}

// Load opens a saved dashboard in preview. Files and analysis of the
// current batch are kept so whole-document revisions still have context.
func (m *Machine) Load(ctx context.Context, id domain.DocumentID) (*domain.Session, error) {
	m.mu.Lock()
	if m.session.Busy {
		m.mu.Unlock()
		return nil, domain.ErrBusy
	}
	m.session.Busy = true
	log := m.logger(ctx, "load").With("document_id", id)
	m.mu.Unlock()
	defer m.recoverCall(ctx, "load", func() {
		m.appendMessage(domain.RoleAgent, fmt.Sprintf(loadFailedText, errCallPanicked), false)
	})

	rec, err := m.svc.docs.Load(context.WithoutCancel(ctx), id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Busy = false

	if err != nil {
		log.Error("failed to load dashboard", "error", err)
		m.appendMessage(domain.RoleAgent, fmt.Sprintf(loadFailedText, err), false)
		m.persist(ctx)
		return m.session.Clone(), fmt.Errorf("load dashboard: %w", err)
	}

	st := &m.session.State
	st.Document = targeting.EnsureScript(rec.DocumentBody)
	st.DocumentKind = domain.DocumentValid
	st.DocumentTitle = rec.Title
	st.DocumentDescription = rec.Description
	st.LoadedDocumentID = rec.ID
	m.designSeq++
	m.transition(ctx, domain.StepPreview)
	st.SelectedElement = nil

	m.appendMessage(domain.RoleSuccess, fmt.Sprintf(loadedText, rec.Title), false)
	m.persist(ctx)
	m.logger(ctx, "load").Info("dashboard loaded", "document_id", id)
	return m.session.Clone(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
