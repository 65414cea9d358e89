package conversation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/agent-dash/internal/adapters/storage/memory"
	"github.com/PabloGalante/agent-dash/internal/app/conversation"
	"github.com/PabloGalante/agent-dash/internal/app/generation"
	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

const (
	firstDoc  = `<!DOCTYPE html><html><head><title>Sales</title></head><body><div id="revenue">Revenue</div></body></html>`
	editedDoc = `<!DOCTYPE html><html><head><title>Sales</title></head><body><div id="revenue" style="color:red">Revenue</div></body></html>`
)

// fakeGenerator returns canned results. The optional hooks run while the
// machine lock is released, standing in for a slow backend.
type fakeGenerator struct {
	mu sync.Mutex

	analyzeErr error
	synthErr   error
	synthKind  domain.DocumentKind
	editErr    error
	reviseErr  error

	synthPanic any
	editPanic  any

	onEdit func()
	calls  []string
}

func (g *fakeGenerator) record(op string) {
	g.mu.Lock()
	g.calls = append(g.calls, op)
	g.mu.Unlock()
}

func (g *fakeGenerator) Analyze(_ context.Context, files []domain.UploadedFile) (domain.DataAnalysis, error) {
	g.record("analyze")
	if g.analyzeErr != nil {
		return domain.DataAnalysis{}, g.analyzeErr
	}
	return domain.DataAnalysis{
		Summary:          "Sales by region",
		Columns:          []string{"region", "revenue"},
		RowCountEstimate: 2,
		KeyInsights:      []string{"West leads revenue"},
	}, nil
}

func (g *fakeGenerator) Synthesize(_ context.Context, _ domain.DataAnalysis, _ domain.Scope, _ string, _ []domain.UploadedFile) (domain.GeneratedDocument, error) {
	g.record("synthesize")
	if g.synthPanic != nil {
		panic(g.synthPanic)
	}
	if g.synthErr != nil {
		return domain.GeneratedDocument{}, g.synthErr
	}
	kind := g.synthKind
	if kind == "" {
		kind = domain.DocumentValid
	}
	return domain.GeneratedDocument{Kind: kind, Body: firstDoc, Title: "Sales", Description: "Revenue overview"}, nil
}

func (g *fakeGenerator) EditElement(_ context.Context, _ string, _ domain.ElementRef, _ string) (domain.GeneratedDocument, error) {
	g.record("edit")
	if g.onEdit != nil {
		g.onEdit()
	}
	if g.editPanic != nil {
		panic(g.editPanic)
	}
	if g.editErr != nil {
		return domain.GeneratedDocument{}, g.editErr
	}
	return domain.GeneratedDocument{Kind: domain.DocumentValid, Body: editedDoc, Title: "Sales", Description: "Revenue overview"}, nil
}

func (g *fakeGenerator) Revise(_ context.Context, _ string, _ *domain.DataAnalysis, _ string) (domain.GeneratedDocument, error) {
	g.record("revise")
	if g.reviseErr != nil {
		return domain.GeneratedDocument{}, g.reviseErr
	}
	return domain.GeneratedDocument{Kind: domain.DocumentValid, Body: editedDoc, Title: "Sales v2", Description: "Revised"}, nil
}

// manualScheduler holds deferred callbacks until Fire.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, f)
	s.delays = append(s.delays, d)
}

func (s *manualScheduler) Fire() {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type harness struct {
	gen   *fakeGenerator
	sched *manualScheduler
	docs  *memory.DocumentStore
	store *memory.SessionStore
	svc   *conversation.Service
}

func newHarness(t *testing.T, opts ...conversation.Option) *harness {
	t.Helper()
	h := &harness{
		gen:   &fakeGenerator{},
		sched: &manualScheduler{},
		docs:  memory.NewDocumentStore(),
		store: memory.NewSessionStore(),
	}
	opts = append([]conversation.Option{conversation.WithScheduler(h.sched)}, opts...)
	h.svc = conversation.NewService(h.gen, h.docs, h.store, opts...)
	return h
}

var salesCSV = domain.UploadedFile{
	ID:         "f1",
	Name:       "sales.csv",
	MimeType:   "text/csv",
	SizeBytes:  31,
	RawContent: []byte("region,revenue\nWest,10\nEast,7\n"),
	Records:    domain.Records{Kind: domain.RecordsCSV, Columns: []string{"region", "revenue"}},
}

// toPreview drives a fresh session to preview.
func (h *harness) toPreview(t *testing.T) *conversation.Machine {
	t.Helper()
	ctx := context.Background()

	m, err := h.svc.StartSession(ctx)
	require.NoError(t, err)
	_, err = m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	_, err = m.ChooseScope(ctx, domain.ScopeAll)
	require.NoError(t, err)
	h.sched.Fire()
	snap, err := m.SendMessage(ctx, "Modern layout with a revenue chart")
	require.NoError(t, err)
	require.Equal(t, domain.StepPreview, snap.State.Step)
	return m
}

func lastMessage(s *domain.Session) domain.Message {
	return s.Messages[len(s.Messages)-1]
}

const selectRevenue = `{"type":"element-selected","payload":{"selector":"#revenue","tagName":"DIV","id":"revenue","className":"card","innerText":"Revenue"}}`

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.StartSession(ctx)
	require.NoError(t, err)
	snap := m.Snapshot()
	assert.Equal(t, domain.StepUpload, snap.State.Step)
	require.Len(t, snap.Messages, 1)
	assert.Contains(t, snap.Messages[0].Text, "Agent Dash")

	snap, err = m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDataSelection, snap.State.Step)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, []string{"region", "revenue"}, snap.Analysis.Columns)
	assert.False(t, lastMessage(snap).Pending)
	assert.Contains(t, lastMessage(snap).Text, "West leads revenue")

	snap, err = m.ChooseScope(ctx, domain.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, domain.StepDataSelection, snap.State.Step)
	assert.Equal(t, domain.ScopeAll, snap.State.DataScope)

	h.sched.Fire()
	snap = m.Snapshot()
	assert.Equal(t, domain.StepDesign, snap.State.Step)
	assert.Contains(t, lastMessage(snap).Text, "let's design your dashboard")

	snap, err = m.SendMessage(ctx, "Modern layout with a revenue chart")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
	assert.Equal(t, firstDoc, snap.State.Document)
	assert.Equal(t, "Sales", snap.State.DocumentTitle)
	assert.Equal(t, "Modern layout with a revenue chart", snap.State.DesignBrief)
	assert.Nil(t, snap.State.SelectedElement)
	assert.Equal(t, domain.RoleSuccess, lastMessage(snap).Role)

	snap, handled, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)
	require.True(t, handled)
	require.NotNil(t, snap.State.SelectedElement)
	assert.Equal(t, "#revenue", snap.State.SelectedElement.Selector)
	assert.Equal(t, domain.RoleAgent, lastMessage(snap).Role)
	assert.Contains(t, lastMessage(snap).Text, "#revenue")

	snap, err = m.SendMessage(ctx, "make it red")
	require.NoError(t, err)
	assert.Equal(t, editedDoc, snap.State.Document)
	assert.Nil(t, snap.State.SelectedElement)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
	assert.Equal(t, []string{"analyze", "synthesize", "edit"}, h.gen.calls)
}

func TestEditFailureKeepsDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)

	h.gen.editErr = errors.New("edit_element: response is not a complete document")
	_, _, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)
	before := len(m.Snapshot().Messages)

	snap, err := m.SendMessage(ctx, "make it red")
	require.NoError(t, err)
	assert.Equal(t, firstDoc, snap.State.Document)
	assert.Nil(t, snap.State.SelectedElement)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
	assert.False(t, snap.Busy)

	// user message plus one settled placeholder
	require.Len(t, snap.Messages, before+2)
	assert.False(t, lastMessage(snap).Pending)
	assert.Contains(t, lastMessage(snap).Text, "couldn't update `#revenue`")
}

func TestRevisionWithoutSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)

	snap, err := m.SendMessage(ctx, "use a dark theme")
	require.NoError(t, err)
	assert.Equal(t, editedDoc, snap.State.Document)
	assert.Equal(t, "Sales v2", snap.State.DocumentTitle)
	assert.Contains(t, lastMessage(snap).Text, "use a dark theme")

	h.gen.reviseErr = errors.New("revise: boom")
	snap, err = m.SendMessage(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, editedDoc, snap.State.Document)
	assert.Equal(t, domain.RoleAgent, lastMessage(snap).Role)
}

func TestBusyGuardAndSelectionDuringEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)

	_, _, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)

	var busyErr, saveErr error
	h.gen.onEdit = func() {
		snap := m.Snapshot()
		assert.True(t, snap.Busy)
		assert.True(t, lastMessage(snap).Pending)

		_, busyErr = m.SendMessage(ctx, "second request")
		_, _, saveErr = m.Save(ctx, conversation.SaveInput{})

		_, err := m.SelectElement(ctx, domain.ElementRef{TagName: "SECTION", ClassNames: "kpis hover:bg"})
		require.NoError(t, err)
	}

	snap, err := m.SendMessage(ctx, "make it red")
	require.NoError(t, err)
	assert.ErrorIs(t, busyErr, domain.ErrBusy)
	assert.ErrorIs(t, saveErr, domain.ErrBusy)
	assert.Equal(t, []string{"analyze", "synthesize", "edit"}, h.gen.calls)

	// the click made during the edit wins and survives it
	require.NotNil(t, snap.State.SelectedElement)
	assert.Equal(t, "section.kpis", snap.State.SelectedElement.Selector)
	assert.False(t, snap.Busy)
}

func TestSynthesisFailureRevertsToDesign(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.synthErr = errors.New("marshal dataset: boom")

	m, _ := h.svc.StartSession(ctx)
	_, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	_, err = m.ChooseScope(ctx, domain.ScopeInsights)
	require.NoError(t, err)
	h.sched.Fire()

	snap, err := m.SendMessage(ctx, "minimal")
	require.NoError(t, err)
	assert.Equal(t, domain.StepDesign, snap.State.Step)
	assert.Empty(t, snap.State.Document)
	assert.NotNil(t, snap.Analysis)
	assert.Len(t, snap.State.UploadedFiles, 1)
	assert.Contains(t, lastMessage(snap).Text, "error generating your dashboard")

	h.gen.synthErr = nil
	snap, err = m.SendMessage(ctx, "minimal")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
}

func TestFallbackDocumentReply(t *testing.T) {
	h := newHarness(t)
	h.gen.synthKind = domain.DocumentFallback
	m := h.toPreview(t)

	snap := m.Snapshot()
	assert.Equal(t, domain.DocumentFallback, snap.State.DocumentKind)
	assert.Contains(t, lastMessage(snap).Text, "standard overview")
}

func TestAnalysisFailureStaysAtUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.analyzeErr = domain.ErrNoFiles

	m, _ := h.svc.StartSession(ctx)
	snap, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	assert.Equal(t, domain.StepUpload, snap.State.Step)
	assert.Empty(t, snap.State.UploadedFiles)
	assert.Nil(t, snap.Analysis)
	assert.Contains(t, lastMessage(snap).Text, "error analyzing your data")
}

func TestUploadLimits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, conversation.WithMaxFiles(3))
	m, _ := h.svc.StartSession(ctx)

	_, err := m.Upload(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrNoFiles)

	four := []domain.UploadedFile{salesCSV, salesCSV, salesCSV, salesCSV}
	_, err = m.Upload(ctx, four)
	assert.ErrorIs(t, err, domain.ErrTooManyFiles)
	assert.Empty(t, h.gen.calls)
}

func TestNewBatchResetsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)

	snap, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDataSelection, snap.State.Step)
	assert.Empty(t, snap.State.Document)
	assert.Empty(t, snap.State.DesignBrief)
	assert.Equal(t, domain.ScopeUnset, snap.State.DataScope)
}

func TestPerStepReplies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m, _ := h.svc.StartSession(ctx)

	snap, err := m.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, snap.Messages[1].Role)
	assert.Contains(t, lastMessage(snap).Text, "upload your data files")

	_, err = m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	snap, err = m.SendMessage(ctx, "hello again")
	require.NoError(t, err)
	assert.Contains(t, lastMessage(snap).Text, "choose whether")

	_, err = m.SendMessage(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestStepGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m, _ := h.svc.StartSession(ctx)

	_, err := m.ChooseScope(ctx, domain.ScopeAll)
	assert.ErrorIs(t, err, domain.ErrInvalidStep)

	_, err = m.SelectElement(ctx, domain.ElementRef{Selector: "#x"})
	assert.ErrorIs(t, err, domain.ErrInvalidStep)

	_, handled, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)
	assert.False(t, handled)

	_, handled, err = m.HandleFrameMessage(ctx, []byte(`{"type":"resize","payload":{"h":10}}`))
	require.NoError(t, err)
	assert.False(t, handled)

	_, _, err = m.Export(ctx)
	assert.ErrorIs(t, err, domain.ErrNoDocument)

	_, err = m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	_, err = m.ChooseScope(ctx, domain.Scope("everything"))
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestStaleDesignPromptIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, conversation.WithDesignPromptDelay(250*time.Millisecond))
	m, _ := h.svc.StartSession(ctx)
	_, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)

	_, err = m.ChooseScope(ctx, domain.ScopeAll)
	require.NoError(t, err)
	_, err = m.ChooseScope(ctx, domain.ScopeInsights)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, h.sched.delays)

	h.sched.Fire()
	snap := m.Snapshot()
	assert.Equal(t, domain.StepDesign, snap.State.Step)
	assert.Equal(t, domain.ScopeInsights, snap.State.DataScope)

	prompts := 0
	for _, msg := range snap.Messages {
		if strings.Contains(msg.Text, "let's design your dashboard") {
			prompts++
		}
	}
	assert.Equal(t, 1, prompts)
}

func TestExportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)

	first, _, err := m.Export(ctx)
	require.NoError(t, err)
	second, snap, err := m.Export(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, "dashboard.html", first.Filename)
	assert.Equal(t, "text/html; charset=utf-8", first.ContentType)
	assert.Contains(t, lastMessage(snap).Text, "downloaded successfully")
	assert.Equal(t, conversation.Export(firstDoc), first)
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)

	snap, id, err := m.Save(ctx, conversation.SaveInput{})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, domain.RoleSuccess, lastMessage(snap).Role)

	rec, err := h.docs.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Sales", rec.Title)
	assert.Equal(t, "Revenue overview", rec.Description)

	// default policy inserts a fresh record every time
	_, second, err := m.Save(ctx, conversation.SaveInput{Title: "Sales copy"})
	require.NoError(t, err)
	assert.NotEqual(t, id, second)

	other, _ := h.svc.StartSession(ctx)
	snap, err = other.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
	assert.Equal(t, id, snap.State.LoadedDocumentID)
	assert.Equal(t, "Sales", snap.State.DocumentTitle)
	assert.Contains(t, snap.State.Document, `data-agentdash-targeting="v1"`)

	snap, err = other.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.Contains(t, lastMessage(snap).Text, "couldn't load")
	assert.Equal(t, domain.StepPreview, snap.State.Step)
}

func TestSaveOverwritePolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, conversation.WithOverwriteOnSave(true))
	m := h.toPreview(t)

	_, id, err := m.Save(ctx, conversation.SaveInput{})
	require.NoError(t, err)
	_, again, err := m.Save(ctx, conversation.SaveInput{Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	list, err := h.docs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Renamed", list[0].Title)
}

func TestUnavailableBackend(t *testing.T) {
	ctx := context.Background()
	svc := conversation.NewService(nil, memory.NewDocumentStore(), nil,
		conversation.WithUnavailableGenerator("AGENTDASH_GEMINI_API_KEY is not set"))

	m, err := svc.StartSession(ctx)
	require.NoError(t, err)
	snap := m.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Contains(t, snap.Messages[1].Text, "AGENTDASH_GEMINI_API_KEY")

	_, err = m.Upload(ctx, []domain.UploadedFile{salesCSV})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Len(t, m.Snapshot().Messages, 2)

	// non-AI replies still work
	_, err = m.SendMessage(ctx, "hi")
	require.NoError(t, err)
}

func TestSessionRehydration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)
	_, _, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)

	// a snapshot taken mid-call, as a crashed process would leave it
	stale := m.Snapshot()
	stale.Busy = true
	stale.Messages = append(stale.Messages, domain.Message{ID: "p", Role: domain.RoleAgent, Text: "working", Pending: true})
	require.NoError(t, h.store.SaveSession(ctx, stale))

	restarted := conversation.NewService(h.gen, h.docs, h.store, conversation.WithScheduler(h.sched))
	got, err := restarted.Get(ctx, m.ID())
	require.NoError(t, err)

	snap := got.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
	assert.Equal(t, firstDoc, snap.State.Document)
	assert.False(t, lastMessage(snap).Pending)
	assert.NotEqual(t, "working", lastMessage(snap).Text)

	_, err = restarted.Get(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, restarted.Drop(ctx, m.ID()))
	_, err = restarted.Get(ctx, m.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSelectionOnlyInPreview(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 20; run++ {
		h := newHarness(t)
		h.gen.editErr = nil
		m, _ := h.svc.StartSession(ctx)

		for step := 0; step < 30; step++ {
			h.gen.synthErr = nil
			h.gen.editErr = nil
			if rng.Intn(4) == 0 {
				h.gen.synthErr = errors.New("boom")
				h.gen.editErr = errors.New("boom")
			}

			switch rng.Intn(7) {
			case 0:
				_, _ = m.Upload(ctx, []domain.UploadedFile{salesCSV})
			case 1:
				_, _ = m.ChooseScope(ctx, domain.ScopeAll)
			case 2:
				h.sched.Fire()
			case 3:
				_, _ = m.SendMessage(ctx, "brief or edit")
			case 4:
				_, _, _ = m.HandleFrameMessage(ctx, []byte(selectRevenue))
			case 5:
				_, _ = m.Load(ctx, "missing")
			case 6:
				_, _, _ = m.Save(ctx, conversation.SaveInput{})
			}

			snap := m.Snapshot()
			if snap.State.SelectedElement != nil {
				assert.Equal(t, domain.StepPreview, snap.State.Step, "run %d step %d", run, step)
			}
			if snap.State.Document != "" {
				assert.Equal(t, domain.StepPreview, snap.State.Step, "run %d step %d", run, step)
			}
			assert.False(t, snap.Busy)
		}
	}
}

func TestPanickingSynthesisLeavesSessionUsable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.synthPanic = "backend exploded"

	m, _ := h.svc.StartSession(ctx)
	_, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	_, err = m.ChooseScope(ctx, domain.ScopeAll)
	require.NoError(t, err)
	h.sched.Fire()

	assert.Panics(t, func() { _, _ = m.SendMessage(ctx, "brief") })

	snap := m.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, domain.StepDesign, snap.State.Step)
	assert.False(t, lastMessage(snap).Pending)
	assert.Contains(t, lastMessage(snap).Text, "error generating your dashboard")

	stored, err := h.store.GetSession(ctx, m.ID())
	require.NoError(t, err)
	assert.False(t, stored.Busy)

	h.gen.synthPanic = nil
	snap, err = m.SendMessage(ctx, "brief")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
}

func TestPanickingEditKeepsDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.toPreview(t)
	_, _, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)
	h.gen.editPanic = "backend exploded"

	assert.Panics(t, func() { _, _ = m.SendMessage(ctx, "make it red") })

	snap := m.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, firstDoc, snap.State.Document)
	assert.Nil(t, snap.State.SelectedElement)
	assert.False(t, lastMessage(snap).Pending)
	assert.Contains(t, lastMessage(snap).Text, "#revenue")
}

// scriptedBackend answers analysis calls with a fixed record and coding calls
// with a fixed document.
type scriptedBackend struct {
	document string
}

func (b scriptedBackend) Generate(_ context.Context, model domain.ModelKind, _ domain.Prompt) (string, error) {
	if model == domain.ModelReasoning {
		return `{"summary":"Sales","columns":["region","revenue"],"rowCount":2,"suggestions":[],"keyInsights":["West leads"]}`, nil
	}
	return b.document, nil
}

func TestNonASCIIDocumentThroughGenerationClient(t *testing.T) {
	ctx := context.Background()
	sched := &manualScheduler{}
	backend := scriptedBackend{document: "<!DOCTYPE html><html><head><meta name=\"dashboard-title\" content=\"Ⱥrea\"></head><body><h1>Ⱥrea \u212a</h1></body></html>"}
	svc := conversation.NewService(generation.NewClient(backend), memory.NewDocumentStore(), memory.NewSessionStore(),
		conversation.WithScheduler(sched))

	m, _ := svc.StartSession(ctx)
	_, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)
	_, err = m.ChooseScope(ctx, domain.ScopeAll)
	require.NoError(t, err)
	sched.Fire()

	snap, err := m.SendMessage(ctx, "brief")
	require.NoError(t, err)
	assert.False(t, snap.Busy)
	assert.Equal(t, domain.StepPreview, snap.State.Step)
	assert.Equal(t, domain.DocumentValid, snap.State.DocumentKind)
	assert.Equal(t, "Ⱥrea", snap.State.DocumentTitle)
	assert.Contains(t, snap.State.Document, "<h1>Ⱥrea \u212a</h1>")

	snap, err = m.SendMessage(ctx, "bigger heading")
	require.NoError(t, err)
	assert.False(t, snap.Busy)
}

func TestUploadLogsStepAfterTransition(t *testing.T) {
	var buf bytes.Buffer
	observability.SetOutput(&buf, slog.LevelInfo)
	t.Cleanup(func() { observability.SetOutput(io.Discard, slog.LevelError) })

	ctx := context.Background()
	h := newHarness(t)
	m, _ := h.svc.StartSession(ctx)
	_, err := m.Upload(ctx, []domain.UploadedFile{salesCSV})
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry struct {
			Msg  string `json:"msg"`
			Step string `json:"step"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Msg == "analysis stored" {
			found = true
			assert.Equal(t, string(domain.StepDataSelection), entry.Step)
		}
	}
	assert.True(t, found)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	h := newHarness(t, conversation.WithIdleTTL(time.Hour), conversation.WithClock(clock))

	idle, _ := h.svc.StartSession(ctx)
	now = now.Add(30 * time.Minute)
	active, _ := h.svc.StartSession(ctx)

	now = now.Add(45 * time.Minute)
	_, err := h.svc.Get(ctx, active.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, h.svc.Sweep(ctx))

	_, err = h.svc.Get(ctx, idle.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	ok, err := h.store.HasSession(ctx, idle.ID())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := h.svc.Get(ctx, active.ID())
	require.NoError(t, err)
	assert.Same(t, active, got)
}

func TestSweepKeepsBusySessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, conversation.WithIdleTTL(time.Minute), conversation.WithClock(func() time.Time { return now }))
	m := h.toPreview(t)
	_, _, err := m.HandleFrameMessage(ctx, []byte(selectRevenue))
	require.NoError(t, err)

	h.gen.onEdit = func() {
		now = now.Add(time.Hour)
		assert.Equal(t, 0, h.svc.Sweep(ctx))
	}
	_, err = m.SendMessage(ctx, "make it red")
	require.NoError(t, err)

	_, err = h.svc.Get(ctx, m.ID())
	assert.NoError(t, err)
}

func TestGetForgetsSessionsDeletedFromStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m, _ := h.svc.StartSession(ctx)

	require.NoError(t, h.store.DeleteSession(ctx, m.ID()))

	_, err := h.svc.Get(ctx, m.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
