package sqlite

import (
	"context"
	"strings"

	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

const localMatchOrder = ` ORDER BY COALESCE(modifiedTime, 0) DESC, file_id ASC`

// FindLocalByName matches local rows whose name equals name, ignoring case.
func (s *Store) FindLocalByName(ctx context.Context, name string) ([]model.FileRecord, error) {
	if name == "" {
		return nil, nil
	}
	return s.findLocal(ctx, `LOWER(name) = LOWER(?)`, name)
}

func (s *Store) FindLocalByNormalized(ctx context.Context, normalized string) ([]model.FileRecord, error) {
	if normalized == "" {
		return nil, nil
	}
	return s.findLocal(ctx, `name_normalized = ?`, normalized)
}

func (s *Store) FindLocalByAggressive(ctx context.Context, aggressive string) ([]model.FileRecord, error) {
	if aggressive == "" {
		return nil, nil
	}
	return s.findLocal(ctx, `name_aggressive = ?`, aggressive)
}

// FindLocalByAggressivePrefix matches local rows whose aggressive name starts
// with prefix. The range form keeps the lookup on idx_files_local_aggressive.
func (s *Store) FindLocalByAggressivePrefix(ctx context.Context, prefix string) ([]model.FileRecord, error) {
	if prefix == "" {
		return nil, nil
	}
	return s.findLocal(ctx, `name_aggressive >= ? AND name_aggressive < ?`, prefix, prefixUpperBound(prefix))
}

func (s *Store) findLocal(ctx context.Context, cond string, args ...any) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrNotOpen
	}
	args = append([]any{string(model.SourceLocal)}, args...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE source = ? AND `+cond+localMatchOrder,
		args...,
	)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// prefixUpperBound returns the smallest string greater than every string
// with the given prefix under byte-wise comparison.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return strings.Repeat("\xff", len(prefix)+1)
}
