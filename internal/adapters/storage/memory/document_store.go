package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// DocumentStore is an in-memory domain.DocumentStore.
// It is NOT persistent and is only suitable for development / local mode.
type DocumentStore struct {
	mu      sync.RWMutex
	records map[domain.DocumentID]*domain.DocumentRecord
	now     func() time.Time
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		records: make(map[domain.DocumentID]*domain.DocumentRecord),
		now:     time.Now,
	}
}

// Save inserts a new record, or overwrites req.ReplaceID when it exists.
func (s *DocumentStore) Save(_ context.Context, req domain.SaveRequest) (domain.DocumentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ReplaceID != "" {
		if rec, ok := s.records[req.ReplaceID]; ok {
			rec.Title = req.Title
			rec.Description = req.Description
			rec.DocumentBody = req.Body
			return rec.ID, nil
		}
	}

	id := domain.DocumentID(uuid.NewString())
	s.records[id] = &domain.DocumentRecord{
		ID:           id,
		CreatedAt:    s.now().UTC(),
		Title:        req.Title,
		Description:  req.Description,
		DocumentBody: req.Body,
	}
	return id, nil
}

func (s *DocumentStore) Load(_ context.Context, id domain.DocumentID) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	out := *rec
	return &out, nil
}

// List returns every record without its body, newest first.
func (s *DocumentStore) List(_ context.Context) ([]*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DocumentRecord, 0, len(s.records))
	for _, rec := range s.records {
		r := *rec
		r.DocumentBody = ""
		out = append(out, &r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *DocumentStore) Delete(_ context.Context, id domain.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(s.records, id)
	return nil
}
