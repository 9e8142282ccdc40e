package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
	"filecatalog/internal/normalize"
)

//go:embed schema.sql
var schemaSQL string

const recordColumns = `file_id, name, path, mimeType, source, description, thumbnailLink, thumbnailPath,
	size, modifiedTime, createdTime, parentId, webContentLink, starred, name_normalized, name_aggressive`

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var _ store.Catalog = (*Store)(nil)

func Open(dbPath string) (*Store, error) {
	return OpenWithLogger(dbPath, nil)
}

func OpenWithLogger(dbPath string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	// Pragmas in the DSN are applied to every pooled connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, log: logger}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	if err := execStatements(s.db, schemaSQL); err != nil {
		return err
	}
	if err := s.ensureSearchIndex(ctx); err != nil {
		return fmt.Errorf("search index: %w", err)
	}
	if _, err := s.populateNormalized(ctx); err != nil {
		return fmt.Errorf("normalized columns: %w", err)
	}
	return nil
}

// writeTx runs fn inside BEGIN IMMEDIATE on a dedicated connection and bumps
// the catalog version before committing when fn reports a change.
func (s *Store) writeTx(ctx context.Context, fn func(conn *sql.Conn) (changed bool, err error)) error {
	if s == nil || s.db == nil {
		return store.ErrNotOpen
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
	}()

	changed, err := fn(conn)
	if err != nil {
		return err
	}
	if changed {
		if err := bumpVersion(ctx, conn); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc rowScanner) (model.FileRecord, error) {
	var (
		r                                         model.FileRecord
		id, name, path, mime, source, desc        sql.NullString
		thumbLink, thumbPath, parent, web, nn, na sql.NullString
		size, mod, created, starred               sql.NullInt64
	)
	if err := sc.Scan(&id, &name, &path, &mime, &source, &desc, &thumbLink, &thumbPath,
		&size, &mod, &created, &parent, &web, &starred, &nn, &na); err != nil {
		return model.FileRecord{}, err
	}
	r.ID = id.String
	r.Name = name.String
	r.Path = path.String
	r.MimeType = mime.String
	if src, ok := model.ParseSource(source.String); ok {
		r.Source = src
	} else {
		r.Source = model.Source(source.String)
	}
	r.Description = desc.String
	r.ThumbnailLink = thumbLink.String
	r.ThumbnailPath = thumbPath.String
	r.Size = size.Int64
	r.ModifiedTime = mod.Int64
	r.CreatedTime = created.Int64
	r.ParentID = parent.String
	r.WebLink = web.String
	r.Starred = starred.Int64 != 0
	r.NormalizedName = nn.String
	r.NormalizedNameAggressive = na.String
	return r, nil
}

func collectRecords(rows *sql.Rows) ([]model.FileRecord, error) {
	defer rows.Close()
	var out []model.FileRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// sourceValues lists the stored spellings of a source.
func sourceValues(src model.Source) []any {
	if src == model.SourceRemote {
		return []any{string(model.SourceRemote), "drive"}
	}
	return []any{string(src)}
}

func projections(r model.FileRecord) (string, string) {
	if r.Source != model.SourceLocal {
		return "", ""
	}
	return normalize.Normalize(r.Name), normalize.Aggressive(r.Name)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func chunkStrings(ids []string, size int) [][]string {
	if size <= 0 {
		size = DeleteChunkSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func execStatements(db *sql.DB, sqlText string) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	sqlText = strings.ReplaceAll(sqlText, "\r\n", "\n")

	var cleaned strings.Builder
	for _, line := range strings.Split(sqlText, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if strings.HasPrefix(trim, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteString("\n")
	}

	parts := strings.Split(cleaned.String(), ";")
	for _, raw := range parts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
