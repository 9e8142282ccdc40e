package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"filecatalog/internal/index/store"
)

const (
	metaVersion     = "version"
	metaIndexLayout = "search_index_layout"

	// Bumped whenever the search_index column set or rowid pairing changes.
	searchIndexLayout = 2
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Version returns the catalog version. Every committed mutation increments it.
func (s *Store) Version(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, store.ErrNotOpen
	}
	return getMeta(ctx, s.db, metaVersion)
}

func bumpVersion(ctx context.Context, q execer) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES (?, 1)
		 ON CONFLICT(key) DO UPDATE SET value = value + 1`,
		metaVersion,
	)
	return err
}

func getMeta(ctx context.Context, q execer, key string) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func setMeta(ctx context.Context, q execer, key string, value int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
