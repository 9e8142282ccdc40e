package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filecatalog/internal/index/sqlite"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

func openCatalog(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFiles(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func mustGet(t *testing.T, cat *sqlite.Store, id string) model.FileRecord {
	t.Helper()
	rec, err := cat.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec
}

func mustMissing(t *testing.T, cat *sqlite.Store, id string) {
	t.Helper()
	if _, err := cat.Get(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected %s to be absent, err=%v", id, err)
	}
}

func newScanner(cat Catalog, stateDir string) *Scanner {
	return New(cat, Config{StateDir: stateDir, RetryDelay: time.Millisecond})
}

func TestRun_CatalogsTree(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writeFiles(t, root, "a.jpg", "sub/b.pdf", "sub/desktop.ini")
	cat := openCatalog(t)

	var last model.Progress
	s := newScanner(cat, stateDir)
	rep, err := s.Run(context.Background(), Options{
		Roots:      []string{root},
		CountFirst: true,
		Progress:   func(p model.Progress) { last = p },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.State != Done || s.State() != Done {
		t.Fatalf("state = %v/%v, want done", rep.State, s.State())
	}
	if rep.Total != 3 || rep.Processed != 3 {
		t.Fatalf("report = %+v, want total=3 processed=3", rep)
	}
	if rep.RunID == "" {
		t.Fatal("expected a run id")
	}
	if last.Processed != 3 {
		t.Fatalf("last progress = %+v", last)
	}

	a := mustGet(t, cat, filepath.Join(root, "a.jpg"))
	if a.ParentID != "" || a.MimeType != "image/jpeg" || a.Size != int64(len("content")) || a.Source != model.SourceLocal {
		t.Fatalf("unexpected root file record: %+v", a)
	}
	sub := mustGet(t, cat, filepath.Join(root, "sub"))
	if !sub.IsFolder() || sub.ParentID != "" || sub.Size != 0 {
		t.Fatalf("unexpected folder record: %+v", sub)
	}
	b := mustGet(t, cat, filepath.Join(root, "sub", "b.pdf"))
	if b.ParentID != filepath.Join(root, "sub") || b.MimeType != "application/pdf" {
		t.Fatalf("unexpected nested record: %+v", b)
	}
	if b.CreatedTime > b.ModifiedTime {
		t.Fatalf("created %d after modified %d", b.CreatedTime, b.ModifiedTime)
	}
	mustMissing(t, cat, filepath.Join(root, "sub", "desktop.ini"))

	cp, err := StateDir(stateDir).Checkpoint()
	if err != nil || cp != "" {
		t.Fatalf("checkpoint = %q, %v; want cleared", cp, err)
	}
	if _, ok, err := StateDir(stateDir).LastSync(LocalSyncFile); err != nil || !ok {
		t.Fatalf("last sync not recorded: ok=%v err=%v", ok, err)
	}
}

func TestRun_IncrementalSkipsOldEntries(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writeFiles(t, root, "a.txt", "sub/b.txt")
	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, rel := range []string{"a.txt", "sub/b.txt", "sub"} {
		if err := os.Chtimes(filepath.Join(root, filepath.FromSlash(rel)), old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := StateDir(stateDir).SaveLastSync(LocalSyncFile, time.Now()); err != nil {
		t.Fatalf("save last sync: %v", err)
	}
	cat := openCatalog(t)
	s := newScanner(cat, stateDir)

	rep, err := s.Run(context.Background(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 0 || rep.Skipped != 3 {
		t.Fatalf("incremental report = %+v, want processed=0 skipped=3", rep)
	}

	rep, err = s.Run(context.Background(), Options{Roots: []string{root}, Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if rep.Processed != 3 || rep.Skipped != 0 {
		t.Fatalf("forced report = %+v, want processed=3", rep)
	}
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writeFiles(t, root, "a/1.txt", "b/2.txt", "c/3.txt")
	if err := StateDir(stateDir).SaveCheckpoint(filepath.Join(root, "b")); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	cat := openCatalog(t)

	rep, err := newScanner(cat, stateDir).Run(context.Background(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 2 {
		t.Fatalf("processed = %d, want 2", rep.Processed)
	}
	mustMissing(t, cat, filepath.Join(root, "a"))
	mustMissing(t, cat, filepath.Join(root, "a", "1.txt"))
	mustGet(t, cat, filepath.Join(root, "b", "2.txt"))
	mustGet(t, cat, filepath.Join(root, "c", "3.txt"))
}

// cancelAfterFirst cancels the run once the first batch has been written.
type cancelAfterFirst struct {
	*sqlite.Store
	cancel context.CancelFunc
	calls  int
}

func (c *cancelAfterFirst) UpsertBatch(ctx context.Context, recs []model.FileRecord, opts store.UpsertOptions) (store.UpsertResult, error) {
	c.calls++
	res, err := c.Store.UpsertBatch(ctx, recs, opts)
	if c.calls == 1 {
		c.cancel()
	}
	return res, err
}

func TestRun_CancelKeepsCheckpoint(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writeFiles(t, root, "d1/1.txt", "d2/2.txt", "d3/3.txt")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cat := &cancelAfterFirst{Store: openCatalog(t), cancel: cancel}

	s := newScanner(cat, stateDir)
	rep, err := s.Run(ctx, Options{Roots: []string{root}, BatchSize: 1})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if rep.State != Cancelled || s.State() != Cancelled {
		t.Fatalf("state = %v/%v, want cancelled", rep.State, s.State())
	}
	if rep.Processed != 1 || cat.calls != 1 {
		t.Fatalf("processed=%d calls=%d, want 1 batch", rep.Processed, cat.calls)
	}
	cp, err := StateDir(stateDir).Checkpoint()
	if err != nil || cp == "" {
		t.Fatalf("checkpoint = %q, %v; want kept", cp, err)
	}
	if _, ok, _ := StateDir(stateDir).LastSync(LocalSyncFile); ok {
		t.Fatal("last sync must not be written by a cancelled run")
	}
}

type flakyCatalog struct {
	*sqlite.Store
	failures int
	err      error
	calls    int
}

func (f *flakyCatalog) UpsertBatch(ctx context.Context, recs []model.FileRecord, opts store.UpsertOptions) (store.UpsertResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return store.UpsertResult{}, f.err
	}
	return f.Store.UpsertBatch(ctx, recs, opts)
}

func TestRun_CheckpointFollowsCommittedBatches(t *testing.T) {
	root := t.TempDir()
	stateDir := t.TempDir()
	writeFiles(t, root, "a/1.txt", "b/2.txt", "c/3.txt")
	cat := &flakyCatalog{Store: openCatalog(t), failures: 1, err: errors.New("disk I/O error")}

	if _, err := newScanner(cat, stateDir).Run(context.Background(), Options{Roots: []string{root}}); err == nil {
		t.Fatal("Run: want flush error")
	}
	if cp, err := StateDir(stateDir).Checkpoint(); err != nil || cp != "" {
		t.Fatalf("checkpoint = %q, %v; want none before any commit", cp, err)
	}

	rep, err := newScanner(cat, stateDir).Run(context.Background(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 6 {
		t.Fatalf("processed = %d, want 6", rep.Processed)
	}
	for _, rel := range []string{"a", "b", "c", "a/1.txt", "b/2.txt", "c/3.txt"} {
		mustGet(t, cat.Store, filepath.Join(root, filepath.FromSlash(rel)))
	}
}

func TestRun_RetriesBusyBatches(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.txt")
	cat := &flakyCatalog{Store: openCatalog(t), failures: 2, err: errors.New("database is locked")}

	rep, err := newScanner(cat, t.TempDir()).Run(context.Background(), Options{Roots: []string{root}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cat.calls != 3 || rep.Processed != 1 {
		t.Fatalf("calls=%d processed=%d", cat.calls, rep.Processed)
	}
}

func TestRun_NonBusyErrorIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.txt")
	boom := errors.New("disk full")
	cat := &flakyCatalog{Store: openCatalog(t), failures: 5, err: boom}

	_, err := newScanner(cat, t.TempDir()).Run(context.Background(), Options{Roots: []string{root}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if cat.calls != 1 {
		t.Fatalf("calls = %d, want no retry", cat.calls)
	}
}

func TestRun_RejectsMissingRoots(t *testing.T) {
	_, err := newScanner(openCatalog(t), t.TempDir()).Run(context.Background(), Options{Roots: []string{filepath.Join(t.TempDir(), "nope")}})
	if !errors.Is(err, ErrNoRoots) {
		t.Fatalf("err = %v, want ErrNoRoots", err)
	}
}

func TestScanPaths_UpsertsAndDeletes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "keep.txt", "gone/x.txt", "gone/inner/y.txt")
	cat := openCatalog(t)
	s := newScanner(cat, t.TempDir())
	opts := Options{Roots: []string{root}}
	ctx := context.Background()

	if _, err := s.Run(ctx, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	mustGet(t, cat, filepath.Join(root, "gone", "inner", "y.txt"))

	if err := os.RemoveAll(filepath.Join(root, "gone")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeFiles(t, root, "fresh/new.txt")

	rep, err := s.ScanPaths(ctx, opts, []string{filepath.Join(root, "gone"), filepath.Join(root, "fresh")})
	if err != nil {
		t.Fatalf("ScanPaths: %v", err)
	}
	if rep.Processed != 2 || rep.Deleted != 4 {
		t.Fatalf("report = %+v, want processed=2 deleted=4", rep)
	}
	mustMissing(t, cat, filepath.Join(root, "gone"))
	mustMissing(t, cat, filepath.Join(root, "gone", "inner", "y.txt"))
	fresh := mustGet(t, cat, filepath.Join(root, "fresh", "new.txt"))
	if fresh.ParentID != filepath.Join(root, "fresh") {
		t.Fatalf("parent = %q", fresh.ParentID)
	}
	mustGet(t, cat, filepath.Join(root, "keep.txt"))
}

func TestEffectiveCreatedTime(t *testing.T) {
	ts := func(y int) int64 { return time.Date(y, 6, 15, 12, 0, 0, 0, time.UTC).Unix() }
	jan1 := func(y int) int64 { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).Unix() }

	cases := []struct {
		name         string
		path         string
		ctime, mtime int64
		want         int64
	}{
		{"older of ctime and mtime", "/data/a.jpg", ts(2022), ts(2020), ts(2020)},
		{"archive year backdates", "/mnt/Banco de Imagens/2015/evento/a.jpg", ts(2022), ts(2023), jan1(2015)},
		{"windows separators", `D:\Banco de Imagens\2010\a.jpg`, ts(2022), ts(2022), jan1(2010)},
		{"archive year not older", "/mnt/Banco de Imagens/2023/a.jpg", ts(2021), ts(2022), ts(2021)},
		{"non numeric segment", "/mnt/Banco de Imagens/misc/a.jpg", ts(2021), ts(2022), ts(2021)},
		{"archive folder is last", "/mnt/Banco de Imagens", ts(2021), ts(2022), ts(2021)},
	}
	for _, tc := range cases {
		if got := EffectiveCreatedTime(tc.path, tc.ctime, tc.mtime); got != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestWalkOrderBefore(t *testing.T) {
	sep := string(filepath.Separator)
	a := sep + filepath.Join("r", "a")
	ab := sep + filepath.Join("r", "a", "b")
	aDash := sep + filepath.Join("r", "a-c")

	if !walkOrderBefore(a, ab) {
		t.Fatal("parent is visited before its child")
	}
	if !walkOrderBefore(ab, aDash) {
		t.Fatal("a/b is visited before a-c in a depth-first walk")
	}
	if walkOrderBefore(aDash, a) {
		t.Fatal("a-c is visited after a")
	}
}
