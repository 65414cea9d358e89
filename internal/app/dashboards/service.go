package dashboards

import (
	"context"
	"strings"

	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

// Service holds the logic of browsing saved dashboards.
type Service struct {
	store domain.DocumentStore
}

// NewService creates a dashboards service from a DocumentStore.
func NewService(store domain.DocumentStore) *Service {
	return &Service{
		store: store,
	}
}

// ListOptions narrows a listing. Limit <= 0 means no limit.
type ListOptions struct {
	Query string
	Limit int
}

// List returns saved dashboards newest first, without bodies, optionally
// filtered by a case-insensitive match on title or description.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*domain.DocumentRecord, error) {
	log := observability.LoggerFromContext(ctx).With("op", "list_dashboards")

	records, err := s.store.List(ctx)
	if err != nil {
		log.Error("failed to list dashboards", "error", err)
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(opts.Query))
	out := make([]*domain.DocumentRecord, 0, len(records))
	for _, rec := range records {
		if q != "" &&
			!strings.Contains(strings.ToLower(rec.Title), q) &&
			!strings.Contains(strings.ToLower(rec.Description), q) {
			continue
		}
		out = append(out, rec)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}

	log.Info("listed dashboards", "count", len(out))
	return out, nil
}

// Get returns one saved dashboard including its body.
func (s *Service) Get(ctx context.Context, id domain.DocumentID) (*domain.DocumentRecord, error) {
	return s.store.Load(ctx, id)
}

// Delete removes a saved dashboard. Unknown ids return ErrDocumentNotFound.
func (s *Service) Delete(ctx context.Context, id domain.DocumentID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to delete dashboard", "document_id", id, "error", err)
		return err
	}
	observability.LoggerFromContext(ctx).Info("dashboard deleted", "document_id", id)
	return nil
}
