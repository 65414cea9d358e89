package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// Store implements domain.DocumentStore on a Firestore collection.
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (AGENTDASH_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) dashboardsCol() *firestore.CollectionRef {
	return s.client.Collection("dashboards")
}

func (s *Store) dashboardDoc(id domain.DocumentID) *firestore.DocumentRef {
	return s.dashboardsCol().Doc(string(id))
}

type dashboardDoc struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Body        string    `firestore:"body"`
	CreatedAt   time.Time `firestore:"created_at"`
}

func (d dashboardDoc) toRecord(id string, withBody bool) *domain.DocumentRecord {
	rec := &domain.DocumentRecord{
		ID:          domain.DocumentID(id),
		CreatedAt:   d.CreatedAt,
		Title:       d.Title,
		Description: d.Description,
	}
	if withBody {
		rec.DocumentBody = d.Body
	}
	return rec
}

// ─────────────────────────────────────────
// DocumentStore implementation
// ─────────────────────────────────────────

func (s *Store) Save(ctx context.Context, req domain.SaveRequest) (domain.DocumentID, error) {
	if req.ReplaceID != "" {
		_, err := s.dashboardDoc(req.ReplaceID).Update(ctx, []firestore.Update{
			{Path: "title", Value: req.Title},
			{Path: "description", Value: req.Description},
			{Path: "body", Value: req.Body},
		})
		if err == nil {
			return req.ReplaceID, nil
		}
		if status.Code(err) != codes.NotFound {
			return "", fmt.Errorf("firestore Save update: %w", err)
		}
	}

	id := domain.DocumentID(uuid.NewString())
	doc := dashboardDoc{
		Title:       req.Title,
		Description: req.Description,
		Body:        req.Body,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.dashboardDoc(id).Create(ctx, doc); err != nil {
		return "", fmt.Errorf("firestore Save: %w", err)
	}
	return id, nil
}

func (s *Store) Load(ctx context.Context, id domain.DocumentID) (*domain.DocumentRecord, error) {
	snap, err := s.dashboardDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("firestore Load: %w", err)
	}

	var doc dashboardDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore Load decode: %w", err)
	}
	return doc.toRecord(snap.Ref.ID, true), nil
}

func (s *Store) List(ctx context.Context) ([]*domain.DocumentRecord, error) {
	iter := s.dashboardsCol().
		Select("title", "description", "created_at").
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	out := []*domain.DocumentRecord{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore List: %w", err)
		}

		var doc dashboardDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode dashboardDoc: %w", err)
		}
		out = append(out, doc.toRecord(snap.Ref.ID, false))
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id domain.DocumentID) error {
	ref := s.dashboardDoc(id)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("firestore Delete lookup: %w", err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("firestore Delete: %w", err)
	}
	return nil
}
