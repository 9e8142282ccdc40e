package backend

import (
	"path/filepath"
	"testing"

	"filecatalog/internal/index/sqlite"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"":        "sqlite",
		" FTS5 ":  "sqlite",
		"sqlite3": "sqlite",
		"Bleve":   "bleve",
		"other":   "other",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	cat, err := sqlite.Open(filepath.Join(root, "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	for _, name := range []string{"sqlite", "bleve"} {
		idx, closer, err := Open(name, DefaultPath(root, name), cat, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if idx.Name() != name {
			t.Fatalf("name = %q, want %q", idx.Name(), name)
		}
		if err := closer.Close(); err != nil {
			t.Fatalf("%s close: %v", name, err)
		}
	}

	if _, _, err := Open("nope", "", cat, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
