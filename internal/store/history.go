package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryStore is the Postgres-backed processing ledger: one bookmark row per
// source plus an append-only set of processed content hashes.
type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) GetLastBookmark(ctx context.Context, sourceID string) (*domain.Bookmark, error) {
	b := &domain.Bookmark{}
	err := s.db.QueryRow(ctx,
		`SELECT source_id, last_index, processed_at FROM source_bookmarks WHERE source_id = $1`,
		sourceID,
	).Scan(&b.SourceID, &b.LastIndex, &b.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *HistoryStore) IsProcessed(ctx context.Context, contentHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_windows WHERE content_hash = $1)`,
		contentHash,
	).Scan(&exists)
	return exists, err
}

// RecordProcessed writes the hash ledger entry and advances the bookmark in
// one transaction. The bookmark never moves backward.
func (s *HistoryStore) RecordProcessed(ctx context.Context, record *domain.ProcessedWindow) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record processed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO processed_windows (content_hash, source_id, end_index, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (content_hash) DO NOTHING`,
		record.ContentHash, record.SourceID, record.EndIndex, record.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert processed window: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO source_bookmarks (source_id, last_index, processed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_id) DO UPDATE
		 SET last_index = GREATEST(source_bookmarks.last_index, EXCLUDED.last_index),
		     processed_at = EXCLUDED.processed_at`,
		record.SourceID, record.EndIndex, record.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert bookmark: %w", err)
	}

	return tx.Commit(ctx)
}
