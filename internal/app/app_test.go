package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"filecatalog/internal/config"
	"filecatalog/internal/core/search"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Scan.StateDir = filepath.Join(dir, "state")
	cfg.Catalog.DBPath = filepath.Join(dir, "state", "catalog.db")
	cfg.Scan.Roots = []string{filepath.Join(dir, "root")}
	if err := os.MkdirAll(cfg.Scan.Roots[0], 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Scan.Roots[0], "invoice march.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestOpenScanAndSearch(t *testing.T) {
	for _, backend := range []string{"sqlite", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Catalog.Backend = backend
			env, err := Open(cfg, nil)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			t.Cleanup(func() { _ = env.Close() })
			if env.Text.Name() != backend {
				t.Fatalf("text index=%q", env.Text.Name())
			}

			sc, err := env.NewScanner()
			if err != nil {
				t.Fatalf("scanner: %v", err)
			}
			ctx := context.Background()
			rep, err := sc.Run(ctx, env.ScanOptions(nil, false))
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if rep.Processed != 1 {
				t.Fatalf("processed=%d", rep.Processed)
			}

			n, err := env.Search.Count(ctx, search.Request{SearchTerm: "invoice"})
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != 1 {
				t.Fatalf("count=%d", n)
			}
		})
	}
}

func TestScanOptionsPrefersExplicitRoots(t *testing.T) {
	cfg := testConfig(t)
	env, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })

	if got := env.ScanOptions(nil, false).Roots; len(got) != 1 || got[0] != cfg.Scan.Roots[0] {
		t.Fatalf("configured roots=%v", got)
	}
	opts := env.ScanOptions([]string{"/elsewhere"}, true)
	if len(opts.Roots) != 1 || opts.Roots[0] != "/elsewhere" || !opts.Force || opts.BatchSize != cfg.Scan.BatchSize {
		t.Fatalf("opts=%+v", opts)
	}
}

func TestNewListerRequiresBaseURL(t *testing.T) {
	cfg := testConfig(t)
	env, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })

	if _, err := env.NewLister(); err == nil {
		t.Fatal("expected error without remote.base_url")
	}
	env.Config.Remote.BaseURL = "http://127.0.0.1:1"
	if _, err := env.NewLister(); err != nil {
		t.Fatalf("lister: %v", err)
	}
	if _, err := env.NewFusion(nil, nil); err != nil {
		t.Fatalf("fusion: %v", err)
	}
}

func TestIgnorePaths(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.BlevePath = filepath.Join(cfg.Scan.StateDir, "x.bleve")
	env := &Env{Config: cfg}
	got := env.IgnorePaths()
	want := map[string]bool{
		cfg.Catalog.DBPath:              true,
		cfg.Catalog.DBPath + "-wal":     true,
		cfg.Catalog.DBPath + "-shm":     true,
		cfg.Catalog.DBPath + "-journal": true,
		cfg.Scan.StateDir:               true,
		cfg.Catalog.BlevePath:           true,
	}
	if len(got) != len(want) {
		t.Fatalf("got=%v", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected ignore path %q", p)
		}
	}
}
