package sqlite

import (
	"context"
	"fmt"
	"strings"

	"filecatalog/internal/index/store"
)

// ApplyScanPragmas tunes the connection pool for long bulk writes.
func (s *Store) ApplyScanPragmas(ctx context.Context) error {
	if s == nil || s.db == nil {
		return store.ErrNotOpen
	}

	stmts := []string{
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA cache_size=-65536;",
		"PRAGMA mmap_size=268435456;",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) QueryPragma(ctx context.Context, name string) (string, error) {
	if s == nil || s.db == nil {
		return "", store.ErrNotOpen
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("pragma name is required")
	}
	for _, r := range name {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		return "", fmt.Errorf("invalid pragma name: %q", name)
	}

	var v any
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name+";").Scan(&v); err != nil {
		return "", err
	}

	switch vv := v.(type) {
	case nil:
		return "", nil
	case string:
		return vv, nil
	case []byte:
		return string(vv), nil
	default:
		return fmt.Sprint(vv), nil
	}
}
