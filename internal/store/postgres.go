package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emuanalytics/editor/internal/style"
)

// PostgresStore keeps the style document in a styles table, one row per
// style id.
type PostgresStore struct {
	db      *sql.DB
	styleID string
}

func NewPostgresStore(db *sql.DB, styleID string) *PostgresStore {
	return &PostgresStore{db: db, styleID: styleID}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Load(ctx context.Context) (*style.Style, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM styles WHERE id=$1`, s.styleID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load style: %w", err)
	}
	return style.Parse(raw)
}

func (s *PostgresStore) Save(ctx context.Context, doc *style.Style) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO styles (id, content)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, updated_at=NOW()
	`, s.styleID, string(raw))
	if err != nil {
		return fmt.Errorf("save style: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
