package fcatcli

import (
	"path/filepath"
	"testing"
)

func testArgs(t *testing.T, args ...string) []string {
	t.Helper()
	dir := t.TempDir()
	base := []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--state-dir", filepath.Join(dir, "state"),
		"--log-level", "error",
		"--no-progress",
		"-z",
	}
	return append(base, args...)
}

func TestExplainNoValueDefaultsToText(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs(testArgs(t, "stats", "--explain"))
	_, opts, err := ExecuteForTest(cmd)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if opts.Explain != "text" {
		t.Fatalf("Explain=%q", opts.Explain)
	}
}

func TestStateDirImpliesDatabase(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{ConfigPath: filepath.Join(dir, "missing.yaml"), StateDir: filepath.Join(dir, "st")}
	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := filepath.Join(dir, "st", "catalog.db"); cfg.Catalog.DBPath != want {
		t.Fatalf("DBPath=%q want %q", cfg.Catalog.DBPath, want)
	}

	opts.DBPath = filepath.Join(dir, "other.db")
	opts.Backend = "bleve"
	cfg, err = loadConfig(opts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Catalog.DBPath != opts.DBPath || cfg.Catalog.Backend != "bleve" {
		t.Fatalf("overrides not applied: %+v", cfg.Catalog)
	}
}

func TestInvalidFlagsAreErrors(t *testing.T) {
	cases := [][]string{
		{"stats", "--explain=yaml"},
		{"stats", "--backend", "lucene"},
		{"q", "beach", "--sort", "random"},
		{"q", "beach", "--modified-after", "yesterday"},
		{"clear", "everything"},
	}
	for _, args := range cases {
		cmd := NewRootCommand()
		cmd.SetArgs(testArgs(t, args...))
		if _, _, err := ExecuteForTest(cmd); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}
