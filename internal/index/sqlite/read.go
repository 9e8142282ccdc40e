package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"filecatalog/internal/index/filter"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

const defaultPageSize = 50

func (s *Store) Get(ctx context.Context, id string) (model.FileRecord, error) {
	if s == nil || s.db == nil {
		return model.FileRecord{}, store.ErrNotOpen
	}
	if strings.TrimSpace(id) == "" {
		return model.FileRecord{}, fmt.Errorf("id is required")
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM files WHERE file_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileRecord{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	return r, err
}

// GetMany returns the records that exist, in the order of ids.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrNotOpen
	}
	byID := make(map[string]model.FileRecord, len(ids))
	for _, chunk := range chunkStrings(ids, DeleteChunkSize) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM files WHERE file_id IN (`+placeholders(len(chunk))+`)`,
			toArgs(chunk)...,
		)
		if err != nil {
			return nil, err
		}
		recs, err := collectRecords(rows)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			byID[r.ID] = r
		}
	}
	out := make([]model.FileRecord, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *Store) FetchPage(ctx context.Context, q store.PageQuery) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrNotOpen
	}
	where, args, err := filter.Compile(q.Filter)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(q.Sort)
	if err != nil {
		return nil, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// FetchAll returns every record matching f.
func (s *Store) FetchAll(ctx context.Context, f filter.Expr, sort store.SortKey) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrNotOpen
	}
	where, args, err := filter.Compile(f)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(sort)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM files WHERE `+where+` ORDER BY `+order, args...)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func (s *Store) Count(ctx context.Context, f filter.Expr) (int, error) {
	if s == nil || s.db == nil {
		return 0, store.ErrNotOpen
	}
	where, args, err := filter.Compile(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE `+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SearchIDs runs an FTS5 MATCH predicate over every indexed column, raw and
// normalized. Syntax errors come back wrapped in store.ErrBadPredicate.
func (s *Store) SearchIDs(ctx context.Context, predicate string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrNotOpen
	}
	if strings.TrimSpace(predicate) == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT file_id FROM search_index WHERE search_index MATCH ?`, predicate)
	if err != nil {
		return nil, badPredicate(ctx, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id.Valid {
			ids = append(ids, id.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, badPredicate(ctx, err)
	}
	return ids, nil
}

func badPredicate(ctx context.Context, err error) error {
	if ctx.Err() != nil || IsBusy(err) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrBadPredicate, err)
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{BySource: map[model.Source]int{}}
	if s == nil || s.db == nil {
		return st, store.ErrNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(source, ''), COUNT(1) FROM files GROUP BY source`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var (
			src string
			n   int
		)
		if err := rows.Scan(&src, &n); err != nil {
			_ = rows.Close()
			return st, err
		}
		key := model.Source(src)
		if parsed, ok := model.ParseSource(src); ok {
			key = parsed
		}
		st.BySource[key] += n
		st.Total += n
	}
	if err := rows.Close(); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE starred = 1`).Scan(&st.Starred); err != nil {
		return st, err
	}
	v, err := s.Version(ctx)
	if err != nil {
		return st, err
	}
	st.Version = v
	return st, nil
}

// Breadcrumb returns the chain of records from the root down to id.
func (s *Store) Breadcrumb(ctx context.Context, id string) ([]model.FileRecord, error) {
	if s == nil || s.db == nil {
		return nil, store.ErrNotOpen
	}
	var chain []model.FileRecord
	seen := map[string]bool{}
	for cur := id; cur != "" && !seen[cur]; {
		seen[cur] = true
		r, err := s.Get(ctx, cur)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
		cur = r.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func orderBy(k store.SortKey) (string, error) {
	switch k {
	case "", store.SortNameAsc:
		return "LOWER(name) ASC, file_id ASC", nil
	case store.SortNameDesc:
		return "LOWER(name) DESC, file_id ASC", nil
	case store.SortSizeAsc:
		return "size ASC, file_id ASC", nil
	case store.SortSizeDesc:
		return "size DESC, file_id ASC", nil
	case store.SortCreatedAsc:
		return "createdTime ASC, file_id ASC", nil
	case store.SortCreatedDesc:
		return "createdTime DESC, file_id ASC", nil
	case store.SortModifiedAsc:
		return "modifiedTime ASC, file_id ASC", nil
	case store.SortModifiedDesc:
		return "modifiedTime DESC, file_id ASC", nil
	default:
		return "", fmt.Errorf("unknown sort %q", k)
	}
}
