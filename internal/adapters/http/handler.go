package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/PabloGalante/agent-dash/internal/adapters/fileparse"
	"github.com/PabloGalante/agent-dash/internal/app/conversation"
	"github.com/PabloGalante/agent-dash/internal/app/dashboards"
	"github.com/PabloGalante/agent-dash/internal/app/targeting"
	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

const (
	maxUploadBytes = 32 << 20
	maxJSONBytes   = 1 << 20
)

type Server struct {
	conv       *conversation.Service
	dashboards *dashboards.Service
	validate   *validator.Validate
}

func NewServer(conv *conversation.Service, dash *dashboards.Service, metrics *observability.Metrics) http.Handler {
	s := &Server{
		conv:       conv,
		dashboards: dash,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(withRequestID, withLogging, middleware.Recoverer, withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/sessions", s.handleCreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/files", s.handleUpload)
		r.Post("/scope", s.handleScope)
		r.Post("/messages", s.handleSendMessage)
		r.Post("/selection", s.handleSelection)
		r.Get("/document", s.handleDocument)
		r.Get("/export", s.handleExport)
		r.Post("/save", s.handleSave)
		r.Post("/load", s.handleLoad)
	})

	r.Get("/dashboards", s.handleListDashboards)
	r.Get("/dashboards/{id}", s.handleGetDashboard)
	r.Delete("/dashboards/{id}", s.handleDeleteDashboard)

	return r
}

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	m, err := s.conv.StartSession(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(m.Snapshot()))
}

// machine resolves {id} or writes the error response.
func (s *Server) machine(w http.ResponseWriter, r *http.Request) (*conversation.Machine, bool) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	m, err := s.conv.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, nil)
		return nil, false
	}
	return m, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(m.Snapshot()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "expected multipart form with files")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]domain.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			badRequest(w, fmt.Sprintf("cannot open %s", fh.Filename))
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(w, fmt.Sprintf("cannot read %s", fh.Filename))
			return
		}

		mimeType := fh.Header.Get("Content-Type")
		files = append(files, domain.UploadedFile{
			ID:         domain.FileID(uuid.NewString()),
			Name:       fh.Filename,
			MimeType:   mimeType,
			SizeBytes:  int64(len(content)),
			RawContent: content,
			Records:    fileparse.Parse(fh.Filename, mimeType, content),
		})
	}

	snap, err := m.Upload(r.Context(), files)
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleScope(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req scopeRequest
	if !s.decode(w, r, &req) {
		return
	}

	scope, _ := domain.ParseScope(req.Scope)
	snap, err := m.ChooseScope(r.Context(), scope)
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	snap, err := m.SendMessage(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

// handleSelection relays a message posted by the preview frame. Messages
// that are not selections, or arrive outside preview, get 204.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		badRequest(w, "cannot read body")
		return
	}

	snap, handled, err := m.HandleFrameMessage(r.Context(), raw)
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	if !handled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

// handleDocument serves the current document for the preview frame.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	doc := m.Snapshot().State.Document
	if doc == "" {
		writeError(w, r, domain.ErrNoDocument, nil)
		return
	}
	w.Header().Set("Content-Type", conversation.ExportContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	file, _, err := m.Export(r.Context())
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Body)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if !s.decode(w, r, &req) {
		return
	}

	snap, id, err := m.Save(r.Context(), conversation.SaveInput{Title: req.Title, Description: req.Description})
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{DocumentID: string(id), Session: toSessionResponse(snap)})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req loadRequest
	if !s.decode(w, r, &req) {
		return
	}

	snap, err := m.Load(r.Context(), domain.DocumentID(req.DocumentID))
	if err != nil {
		writeError(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

// ─────────────────────────────────────────────
// Saved dashboards
// ─────────────────────────────────────────────

func (s *Server) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	opts := dashboards.ListOptions{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}

	records, err := s.dashboards.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]dashboardResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toDashboardResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": out})
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	rec, err := s.dashboards.Get(r.Context(), domain.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(rec))
}

func (s *Server) handleDeleteDashboard(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboards.Delete(r.Context(), domain.DocumentID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// decode reads a JSON body into v and validates it, writing 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			badRequest(w, fmt.Sprintf("field %s failed %s validation", verrs[0].Field(), verrs[0].Tag()))
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrNoDocument), errors.Is(err, domain.ErrNoAnalysis):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoFiles), errors.Is(err, domain.ErrTooManyFiles),
		errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrInvalidScope),
		errors.Is(err, targeting.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// writeError maps err to a status and, when a session is at hand, includes
// its snapshot so the client can render the failure message.
func writeError(w http.ResponseWriter, r *http.Request, err error, m *conversation.Machine) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if m != nil {
		snap := toSessionResponse(m.Snapshot())
		resp.Session = &snap
	}
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
