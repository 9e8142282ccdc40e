package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
	"filecatalog/internal/normalize"
)

const rebuildBatchSize = 1000

var searchIndexColumns = []string{"name", "description", "normalized_name", "normalized_description", "file_id", "source"}

const createSearchIndex = `CREATE VIRTUAL TABLE search_index USING fts5(
	name,
	description,
	normalized_name,
	normalized_description,
	file_id UNINDEXED,
	source UNINDEXED,
	tokenize="trigram"
)`

// ensureSearchIndex rebuilds search_index when it is missing, has a different
// column set, or predates the rowid pairing with files.
func (s *Store) ensureSearchIndex(ctx context.Context) error {
	cols, err := s.searchIndexColumns(ctx)
	if err != nil {
		return err
	}
	layout, err := getMeta(ctx, s.db, metaIndexLayout)
	if err != nil {
		return err
	}

	reason := ""
	switch {
	case len(cols) == 0:
		reason = "missing"
	case !sameColumns(cols, searchIndexColumns):
		reason = "columns " + strings.Join(cols, ",")
	case layout != searchIndexLayout:
		reason = fmt.Sprintf("layout %d", layout)
	default:
		return nil
	}

	s.log.Info("rebuilding search index", "reason", reason)
	n, err := s.RebuildSearchIndex(ctx)
	if err != nil {
		return err
	}
	s.log.Info("search index rebuilt", "rows", n)
	return nil
}

func (s *Store) searchIndexColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(search_index)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func sameColumns(got []string, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// RebuildSearchIndex drops search_index and refills it from files in one
// transaction. It returns the number of indexed rows.
func (s *Store) RebuildSearchIndex(ctx context.Context) (int, error) {
	total := 0
	err := s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		total = 0
		if _, err := conn.ExecContext(ctx, `DROP TABLE IF EXISTS search_index`); err != nil {
			return false, err
		}
		if _, err := conn.ExecContext(ctx, createSearchIndex); err != nil {
			return false, err
		}

		ins, err := conn.PrepareContext(ctx, insertSearchRow)
		if err != nil {
			return false, err
		}
		defer ins.Close()

		after := int64(math.MinInt64)
		for {
			type row struct {
				rowid          int64
				id, name, desc string
				source         string
			}
			rows, err := conn.QueryContext(ctx,
				`SELECT rowid, file_id, COALESCE(name, ''), COALESCE(description, ''), COALESCE(source, '')
				 FROM files WHERE rowid > ? ORDER BY rowid LIMIT ?`,
				after, rebuildBatchSize,
			)
			if err != nil {
				return false, err
			}
			var batch []row
			for rows.Next() {
				var r row
				var id sql.NullString
				if err := rows.Scan(&r.rowid, &id, &r.name, &r.desc, &r.source); err != nil {
					_ = rows.Close()
					return false, err
				}
				r.id = id.String
				batch = append(batch, r)
			}
			if err := rows.Close(); err != nil {
				return false, err
			}
			if len(batch) == 0 {
				break
			}
			for _, r := range batch {
				if _, err := ins.ExecContext(ctx, r.rowid, r.name, r.desc,
					normalize.Normalize(r.name), normalize.Normalize(r.desc), r.id, r.source); err != nil {
					return false, err
				}
			}
			total += len(batch)
			after = batch[len(batch)-1].rowid
		}

		if err := setMeta(ctx, conn, metaIndexLayout, searchIndexLayout); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// populateNormalized fills matcher projections on local rows written by older
// versions of the catalog.
func (s *Store) populateNormalized(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, COALESCE(name, '') FROM files
		 WHERE source = ? AND (name_normalized IS NULL OR name_aggressive IS NULL)`,
		string(model.SourceLocal),
	)
	if err != nil {
		return 0, err
	}
	type pending struct{ id, name string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.name); err != nil {
			_ = rows.Close()
			return 0, err
		}
		todo = append(todo, p)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(todo) == 0 {
		return 0, nil
	}

	err = s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		stmt, err := conn.PrepareContext(ctx, `UPDATE files SET name_normalized = ?, name_aggressive = ? WHERE file_id = ?`)
		if err != nil {
			return false, err
		}
		defer stmt.Close()
		for _, p := range todo {
			if _, err := stmt.ExecContext(ctx, normalize.Normalize(p.name), normalize.Aggressive(p.name), p.id); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("populated normalized names", "rows", len(todo))
	return len(todo), nil
}

// SearchIndexCount returns the number of rows in search_index.
func (s *Store) SearchIndexCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, store.ErrNotOpen
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM search_index`).Scan(&n)
	return n, err
}

const insertSearchRow = `INSERT INTO search_index(rowid, name, description, normalized_name, normalized_description, file_id, source)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
