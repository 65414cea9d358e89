// Package conversation is the dashboard conversation state machine: it
// sequences upload, scope choice, design, generation and preview, keeps the
// message timeline, and routes messages to the generation client.
package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

// Generator is the subset of the generation client the state machine uses.
type Generator interface {
	Analyze(ctx context.Context, files []domain.UploadedFile) (domain.DataAnalysis, error)
	Synthesize(ctx context.Context, analysis domain.DataAnalysis, scope domain.Scope, brief string, files []domain.UploadedFile) (domain.GeneratedDocument, error)
	EditElement(ctx context.Context, document string, ref domain.ElementRef, request string) (domain.GeneratedDocument, error)
	Revise(ctx context.Context, document string, analysis *domain.DataAnalysis, request string) (domain.GeneratedDocument, error)
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Service is the registry of live sessions. Sessions not in memory are
// rehydrated from the session store on first access, and sessions idle for
// longer than the idle TTL are evicted by Sweep.
type Service struct {
	gen               Generator
	unavailableReason string
	docs              domain.DocumentStore
	sessions          domain.SessionStore
	scheduler         Scheduler
	metrics           *observability.Metrics
	now               func() time.Time

	designDelay     time.Duration
	maxFiles        int
	overwriteOnSave bool
	idleTTL         time.Duration

	mu       sync.Mutex
	machines map[domain.SessionID]*Machine
	// lastUsed is when each machine was last handed out.
	lastUsed map[domain.SessionID]time.Time
}

type Option func(*Service)

// WithUnavailableGenerator records why no generator could be built. Sessions
// report the reason once when they start.
func WithUnavailableGenerator(reason string) Option {
	return func(s *Service) {
		s.gen = nil
		s.unavailableReason = reason
	}
}

func WithScheduler(sched Scheduler) Option {
	return func(s *Service) {
		s.scheduler = sched
	}
}

func WithDesignPromptDelay(d time.Duration) Option {
	return func(s *Service) {
		s.designDelay = d
	}
}

func WithMaxFiles(n int) Option {
	return func(s *Service) {
		s.maxFiles = n
	}
}

// WithOverwriteOnSave makes a save after a load or an earlier save replace
// that record instead of inserting a new one.
func WithOverwriteOnSave(overwrite bool) Option {
	return func(s *Service) {
		s.overwriteOnSave = overwrite
	}
}

// WithIdleTTL sets how long a session may go unused before Sweep evicts it.
// Zero keeps sessions until they are dropped.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Service) {
		s.idleTTL = d
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService builds the registry. gen may be nil together with
// WithUnavailableGenerator; sessions may be nil to keep sessions in memory
// only.
func NewService(gen Generator, docs domain.DocumentStore, sessions domain.SessionStore, opts ...Option) *Service {
	s := &Service{
		gen:         gen,
		docs:        docs,
		sessions:    sessions,
		scheduler:   timeScheduler{},
		now:         time.Now,
		designDelay: time.Second,
		maxFiles:    3,
		machines:    make(map[domain.SessionID]*Machine),
		lastUsed:    make(map[domain.SessionID]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil && s.unavailableReason == "" {
		s.unavailableReason = "no generation backend configured"
	}
	return s
}

// StartSession creates a session at the upload step with the welcome
// message, plus one remediation message when the backend is unavailable.
func (s *Service) StartSession(ctx context.Context) (*Machine, error) {
	now := s.now()
	session := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		CreatedAt: now,
		UpdatedAt: now,
		State:     domain.ConversationState{Step: domain.StepUpload},
		Messages:  []domain.Message{},
	}

	m := &Machine{session: session, svc: s}
	log := m.logger(ctx, "start_session")

	m.mu.Lock()
	m.appendMessage(domain.RoleAgent, welcome(s.maxFiles), false)
	if s.gen == nil {
		m.appendMessage(domain.RoleAgent, unavailableText(s.unavailableReason), false)
		log.Warn("session started without generation backend", "reason", s.unavailableReason)
	}
	m.persist(ctx)
	m.mu.Unlock()

	s.mu.Lock()
	s.machines[session.ID] = m
	s.lastUsed[session.ID] = now
	s.mu.Unlock()

	log.Info("session started")
	return m, nil
}

// Get returns the live machine for id, rehydrating it from the session store
// when needed. A cached session whose snapshot was deleted from the store
// is forgotten.
func (s *Service) Get(ctx context.Context, id domain.SessionID) (*Machine, error) {
	s.mu.Lock()
	m, ok := s.machines[id]
	s.mu.Unlock()
	if ok {
		return s.checkCached(ctx, m)
	}

	if s.sessions == nil {
		return nil, domain.ErrSessionNotFound
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	rehydrate(session)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.machines[id]; ok {
		return existing, nil
	}
	m = &Machine{session: session, svc: s}
	s.machines[id] = m
	s.lastUsed[id] = s.now()
	m.logger(ctx, "rehydrate").Info("session restored from store")
	return m, nil
}

func (s *Service) checkCached(ctx context.Context, m *Machine) (*Machine, error) {
	id := m.ID()
	if s.sessions != nil {
		exists, err := s.sessions.HasSession(ctx, id)
		if err != nil {
			// The store being unreachable does not invalidate the live copy.
			m.logger(ctx, "get").Warn("session store check failed", "error", err)
		} else if !exists {
			s.forget(id)
			m.logger(ctx, "get").Info("session removed from store, evicted")
			return nil, domain.ErrSessionNotFound
		}
	}

	s.mu.Lock()
	s.lastUsed[id] = s.now()
	s.mu.Unlock()
	return m, nil
}

func (s *Service) forget(id domain.SessionID) {
	s.mu.Lock()
	delete(s.machines, id)
	delete(s.lastUsed, id)
	s.mu.Unlock()
}

// Drop forgets the session both in memory and in the store.
func (s *Service) Drop(ctx context.Context, id domain.SessionID) error {
	s.forget(id)
	if s.sessions == nil {
		return nil
	}
	return s.sessions.DeleteSession(ctx, id)
}

// Sweep drops sessions unused for longer than the idle TTL, from memory and
// from the session store. Busy sessions are kept. It returns how many
// sessions were evicted.
func (s *Service) Sweep(ctx context.Context) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []*Machine
	for id, used := range s.lastUsed {
		if used.Before(cutoff) {
			idle = append(idle, s.machines[id])
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, m := range idle {
		if m.busy() {
			continue
		}
		s.mu.Lock()
		used, ok := s.lastUsed[m.ID()]
		stillIdle := ok && used.Before(cutoff)
		s.mu.Unlock()
		if !stillIdle {
			continue
		}
		if err := s.Drop(ctx, m.ID()); err != nil {
			m.logger(ctx, "sweep").Warn("failed to delete idle session snapshot", "error", err)
		}
		evicted++
	}
	if evicted > 0 {
		observability.LoggerFromContext(ctx).Info("idle sessions evicted", "count", evicted)
	}
	return evicted
}

// RunJanitor calls Sweep every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// rehydrate repairs a snapshot taken mid-call: the call that was in flight
// is gone, so its placeholder is settled and the transient step undone.
func rehydrate(session *domain.Session) {
	session.Busy = false
	if session.State.Step == domain.StepGeneration {
		session.State.Step = domain.StepDesign
	}
	if session.State.Step != domain.StepPreview {
		session.State.SelectedElement = nil
	}
	for i := range session.Messages {
		if session.Messages[i].Pending {
			session.Messages[i].Pending = false
			session.Messages[i].Text = interruptedText
		}
	}
}
