// Package sqlite persists saved dashboards in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/PabloGalante/agent-dash/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS dashboards (
	id          TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dashboards_created_at ON dashboards(created_at DESC);
`

// Store implements domain.DocumentStore on SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (or creates) dashboards.db under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required for sqlite store")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "dashboards.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: dbPath, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Save inserts a new row, or overwrites req.ReplaceID when that row exists.
func (s *Store) Save(ctx context.Context, req domain.SaveRequest) (domain.DocumentID, error) {
	if req.ReplaceID != "" {
		res, err := s.db.ExecContext(ctx,
			`UPDATE dashboards SET title = ?, description = ?, body = ? WHERE id = ?`,
			req.Title, req.Description, req.Body, string(req.ReplaceID))
		if err != nil {
			return "", fmt.Errorf("updating dashboard: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return req.ReplaceID, nil
		}
	}

	id := domain.DocumentID(uuid.NewString())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dashboards (id, created_at, title, description, body) VALUES (?, ?, ?, ?, ?)`,
		string(id), s.now().UTC().UnixNano(), req.Title, req.Description, req.Body)
	if err != nil {
		return "", fmt.Errorf("inserting dashboard: %w", err)
	}
	return id, nil
}

func (s *Store) Load(ctx context.Context, id domain.DocumentID) (*domain.DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, title, description, body FROM dashboards WHERE id = ?`, string(id))

	var (
		rec     domain.DocumentRecord
		rawID   string
		created int64
	)
	if err := row.Scan(&rawID, &created, &rec.Title, &rec.Description, &rec.DocumentBody); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("loading dashboard: %w", err)
	}
	rec.ID = domain.DocumentID(rawID)
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}

// List returns every row without its body, newest first.
func (s *Store) List(ctx context.Context) ([]*domain.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, title, description FROM dashboards ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing dashboards: %w", err)
	}
	defer rows.Close()

	out := []*domain.DocumentRecord{}
	for rows.Next() {
		var (
			rec     domain.DocumentRecord
			rawID   string
			created int64
		)
		if err := rows.Scan(&rawID, &created, &rec.Title, &rec.Description); err != nil {
			return nil, fmt.Errorf("scanning dashboard: %w", err)
		}
		rec.ID = domain.DocumentID(rawID)
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id domain.DocumentID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deleting dashboard: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
