package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
	"filecatalog/internal/normalize"
)

type existingRow struct {
	rowid         int64
	description   string
	webLink       string
	thumbnailLink string
	thumbnailPath string
	modifiedTime  int64
	starred       bool
}

const upsertFile = `INSERT INTO files (` + recordColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(file_id) DO UPDATE SET
	  name=excluded.name,
	  path=excluded.path,
	  mimeType=excluded.mimeType,
	  source=excluded.source,
	  description=excluded.description,
	  thumbnailLink=excluded.thumbnailLink,
	  thumbnailPath=excluded.thumbnailPath,
	  size=excluded.size,
	  modifiedTime=excluded.modifiedTime,
	  createdTime=excluded.createdTime,
	  parentId=excluded.parentId,
	  webContentLink=excluded.webContentLink,
	  starred=excluded.starred,
	  name_normalized=excluded.name_normalized,
	  name_aggressive=excluded.name_aggressive
	RETURNING rowid`

// UpsertBatch replaces records by id in a single transaction: either every
// record (catalog row and search row) is written or none is. Records are
// applied in input order, so a later duplicate id wins.
//
// A local record arriving with a blank description keeps the stored one
// unless AllowDescriptionOverwrite is set; stored link fields, the thumbnail
// path and the starred flag survive a rescan the same way.
func (s *Store) UpsertBatch(ctx context.Context, records []model.FileRecord, opts store.UpsertOptions) (store.UpsertResult, error) {
	var res store.UpsertResult
	if s == nil || s.db == nil {
		return res, store.ErrNotOpen
	}
	if len(records) == 0 {
		return res, nil
	}

	err := s.writeTx(ctx, func(conn *sql.Conn) (bool, error) {
		res = store.UpsertResult{}

		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		existing, err := loadExisting(ctx, conn, ids)
		if err != nil {
			return false, err
		}

		upsert, err := conn.PrepareContext(ctx, upsertFile)
		if err != nil {
			return false, err
		}
		defer upsert.Close()
		delSearch, err := conn.PrepareContext(ctx, `DELETE FROM search_index WHERE rowid = ?`)
		if err != nil {
			return false, err
		}
		defer delSearch.Close()
		insSearch, err := conn.PrepareContext(ctx, insertSearchRow)
		if err != nil {
			return false, err
		}
		defer insSearch.Close()

		for i, r := range records {
			if opts.FailAfter > 0 && i >= opts.FailAfter {
				return false, fmt.Errorf("upsert %q: %w", r.ID, store.ErrInjected)
			}
			if strings.TrimSpace(r.ID) == "" {
				return false, fmt.Errorf("upsert record %d: id is required", i)
			}
			if r.Source == "" {
				r.Source = opts.Source
			}
			if _, ok := model.ParseSource(string(r.Source)); !ok {
				return false, fmt.Errorf("upsert %q: invalid source %q", r.ID, r.Source)
			}

			prev, had := existing[r.ID]
			if had && opts.SkipStale && prev.modifiedTime > r.ModifiedTime {
				res.Stale++
				continue
			}
			if had && r.Source == model.SourceLocal {
				if strings.TrimSpace(r.Description) == "" && !opts.AllowDescriptionOverwrite && prev.description != "" {
					r.Description = prev.description
					res.Preserved++
				}
				if r.WebLink == "" {
					r.WebLink = prev.webLink
				}
				if r.ThumbnailLink == "" {
					r.ThumbnailLink = prev.thumbnailLink
				}
				if r.ThumbnailPath == "" {
					r.ThumbnailPath = prev.thumbnailPath
				}
				r.Starred = r.Starred || prev.starred
			}
			r.NormalizedName, r.NormalizedNameAggressive = projections(r)

			var rowid int64
			if err := upsert.QueryRowContext(ctx,
				r.ID, r.Name, nullString(r.Path), r.MimeType, string(r.Source), r.Description,
				r.ThumbnailLink, r.ThumbnailPath, r.Size, r.ModifiedTime, r.CreatedTime,
				r.ParentID, r.WebLink, boolInt(r.Starred), r.NormalizedName, r.NormalizedNameAggressive,
			).Scan(&rowid); err != nil {
				return false, fmt.Errorf("upsert %q: %w", r.ID, err)
			}
			if _, err := delSearch.ExecContext(ctx, rowid); err != nil {
				return false, err
			}
			if _, err := insSearch.ExecContext(ctx, rowid, r.Name, r.Description,
				normalize.Normalize(r.Name), normalize.Normalize(r.Description), r.ID, string(r.Source)); err != nil {
				return false, fmt.Errorf("index %q: %w", r.ID, err)
			}

			existing[r.ID] = existingRow{
				rowid:         rowid,
				description:   r.Description,
				webLink:       r.WebLink,
				thumbnailLink: r.ThumbnailLink,
				thumbnailPath: r.ThumbnailPath,
				modifiedTime:  r.ModifiedTime,
				starred:       r.Starred,
			}
			res.Written++
		}
		return res.Written > 0, nil
	})
	if err != nil {
		return store.UpsertResult{}, err
	}
	return res, nil
}

func loadExisting(ctx context.Context, conn *sql.Conn, ids []string) (map[string]existingRow, error) {
	out := make(map[string]existingRow, len(ids))
	for _, chunk := range chunkStrings(ids, DeleteChunkSize) {
		rows, err := conn.QueryContext(ctx,
			`SELECT file_id, rowid, COALESCE(description, ''), COALESCE(webContentLink, ''),
			        COALESCE(thumbnailLink, ''), COALESCE(thumbnailPath, ''),
			        COALESCE(modifiedTime, 0), COALESCE(starred, 0)
			 FROM files WHERE file_id IN (`+placeholders(len(chunk))+`)`,
			toArgs(chunk)...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				id      string
				e       existingRow
				starred int64
			)
			if err := rows.Scan(&id, &e.rowid, &e.description, &e.webLink, &e.thumbnailLink,
				&e.thumbnailPath, &e.modifiedTime, &starred); err != nil {
				_ = rows.Close()
				return nil, err
			}
			e.starred = starred != 0
			out[id] = e
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
