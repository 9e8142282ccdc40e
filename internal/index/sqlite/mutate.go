package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
	"filecatalog/internal/normalize"
)

// DeleteChunkSize bounds the ids bound into one statement.
const DeleteChunkSize = 500

// UpdateMetadata replaces the description and, when given, the link fields
// of one record, mirroring the description into search_index.
func (s *Store) UpdateMetadata(ctx context.Context, id string, md store.Metadata) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}
	return s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		var (
			rowid  int64
			name   sql.NullString
			source sql.NullString
		)
		err := conn.QueryRowContext(ctx,
			`UPDATE files SET
			   description = ?,
			   webContentLink = COALESCE(?, webContentLink),
			   thumbnailLink = COALESCE(?, thumbnailLink)
			 WHERE file_id = ?
			 RETURNING rowid, name, source`,
			md.Description, optString(md.WebLink), optString(md.ThumbnailLink), id,
		).Scan(&rowid, &name, &source)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return false, err
		}
		if err := replaceSearchRow(ctx, conn, rowid, id, name.String, md.Description, source.String); err != nil {
			return false, err
		}
		return true, nil
	})
}

// DeleteByIDs removes records from files and search_index, DeleteChunkSize
// ids per statement, in one transaction. It returns the number of catalog
// rows removed.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if s == nil || s.db == nil {
		return 0, store.ErrNotOpen
	}
	if len(ids) == 0 {
		return 0, nil
	}
	total := 0
	err := s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		total = 0
		for _, chunk := range chunkStrings(ids, DeleteChunkSize) {
			in := placeholders(len(chunk))
			args := toArgs(chunk)
			if _, err := conn.ExecContext(ctx,
				`DELETE FROM search_index WHERE rowid IN (SELECT rowid FROM files WHERE file_id IN (`+in+`))`,
				args...,
			); err != nil {
				return false, err
			}
			res, err := conn.ExecContext(ctx, `DELETE FROM files WHERE file_id IN (`+in+`)`, args...)
			if err != nil {
				return false, err
			}
			n, _ := res.RowsAffected()
			total += int(n)
		}
		return total > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ClearSource removes every record of one source.
func (s *Store) ClearSource(ctx context.Context, src model.Source) (int, error) {
	if _, ok := model.ParseSource(string(src)); !ok {
		return 0, fmt.Errorf("invalid source %q", src)
	}
	values := sourceValues(src)
	in := placeholders(len(values))
	total := 0
	err := s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM search_index WHERE rowid IN (SELECT rowid FROM files WHERE source IN (`+in+`))`,
			values...,
		); err != nil {
			return false, err
		}
		res, err := conn.ExecContext(ctx, `DELETE FROM files WHERE source IN (`+in+`)`, values...)
		if err != nil {
			return false, err
		}
		n, _ := res.RowsAffected()
		total = int(n)
		return total > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) SetStarred(ctx context.Context, id string, starred bool) error {
	return s.updateOne(ctx, id, `UPDATE files SET starred = ? WHERE file_id = ?`, boolInt(starred), id)
}

// ToggleStarred flips the starred flag and returns the new value.
func (s *Store) ToggleStarred(ctx context.Context, id string) (bool, error) {
	var starred int64
	err := s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		err := conn.QueryRowContext(ctx,
			`UPDATE files SET starred = CASE WHEN COALESCE(starred, 0) = 0 THEN 1 ELSE 0 END
			 WHERE file_id = ? RETURNING starred`,
			id,
		).Scan(&starred)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", id, store.ErrNotFound)
		}
		return err == nil, err
	})
	if err != nil {
		return false, err
	}
	return starred != 0, nil
}

// UpdateThumbnailPath persists where the thumbnail collaborator cached a
// derived image for id.
func (s *Store) UpdateThumbnailPath(ctx context.Context, id string, path string) error {
	return s.updateOne(ctx, id, `UPDATE files SET thumbnailPath = ? WHERE file_id = ?`, path, id)
}

func (s *Store) updateOne(ctx context.Context, id string, stmt string, args ...any) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}
	return s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		res, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return false, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, fmt.Errorf("%s: %w", id, store.ErrNotFound)
		}
		return true, nil
	})
}

func replaceSearchRow(ctx context.Context, conn *sql.Conn, rowid int64, id, name, description, source string) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM search_index WHERE rowid = ?`, rowid); err != nil {
		return err
	}
	_, err := conn.ExecContext(ctx, insertSearchRow, rowid, name, description,
		normalize.Normalize(name), normalize.Normalize(description), id, source)
	return err
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
