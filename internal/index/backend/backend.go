// Package backend selects the text index that serves free-text search.
package backend

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"filecatalog/internal/core/search"
	"filecatalog/internal/index/bleve"
	"filecatalog/internal/index/store"
)

func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "sqlite", "sqlite3", "fts5":
		return "sqlite"
	case "bleve":
		return "bleve"
	default:
		return name
	}
}

// DefaultPath is where a backend keeps its files under stateDir. The sqlite
// backend lives inside the catalog database and has no path of its own.
func DefaultPath(stateDir string, name string) string {
	switch NormalizeName(name) {
	case "bleve":
		return filepath.Join(stateDir, "catalog.bleve")
	default:
		return ""
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the named text index over cat and a closer for its resources.
func Open(name string, path string, cat store.Reader, logger *slog.Logger) (search.TextIndex, io.Closer, error) {
	switch NormalizeName(name) {
	case "sqlite":
		return search.NewFTSIndex(cat), nopCloser{}, nil
	case "bleve":
		x, err := bleve.OpenWithLogger(path, cat, logger)
		if err != nil {
			return nil, nil, err
		}
		return x, x, nil
	default:
		return nil, nil, fmt.Errorf("unknown text index backend: %s", name)
	}
}
