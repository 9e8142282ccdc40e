package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"filecatalog/internal/index/filter"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/catalog.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func localRecord(id, name string) model.FileRecord {
	return model.FileRecord{ID: id, Name: name, Path: id, Source: model.SourceLocal, Size: 10, ModifiedTime: 100}
}

func remoteRecord(id, name string) model.FileRecord {
	return model.FileRecord{ID: id, Name: name, Source: model.SourceRemote, Size: 10, ModifiedTime: 100}
}

func mustUpsert(t *testing.T, s *Store, recs ...model.FileRecord) store.UpsertResult {
	t.Helper()
	res, err := s.UpsertBatch(context.Background(), recs, store.UpsertOptions{})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return res
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsertBatch_WritesCatalogAndSearchRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res := mustUpsert(t, s, localRecord("/a/Foto Família.jpg", "Foto Família.jpg"), remoteRecord("r1", "notes.txt"))
	if res.Written != 2 {
		t.Fatalf("written=%d", res.Written)
	}

	n, err := s.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	fts, err := s.SearchIndexCount(ctx)
	if err != nil {
		t.Fatalf("fts count: %v", err)
	}
	if n != 2 || fts != 2 {
		t.Fatalf("files=%d search_index=%d", n, fts)
	}

	got, err := s.Get(ctx, "/a/Foto Família.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.NormalizedName != "foto familia.jpg" || got.NormalizedNameAggressive != "fotofamilia" {
		t.Fatalf("projections=%q %q", got.NormalizedName, got.NormalizedNameAggressive)
	}
	remote, _ := s.Get(ctx, "r1")
	if remote.NormalizedName != "" || remote.NormalizedNameAggressive != "" {
		t.Fatalf("remote rows must not carry projections: %+v", remote)
	}

	// Re-upserting the same ids replaces rather than duplicates.
	mustUpsert(t, s, localRecord("/a/Foto Família.jpg", "Foto Família.jpg"))
	fts, _ = s.SearchIndexCount(ctx)
	if fts != 2 {
		t.Fatalf("search_index=%d after re-upsert", fts)
	}
}

func TestUpsertBatch_PreservesLocalDescription(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := localRecord("/a/x.jpg", "x.jpg")
	r.Description = "curated"
	r.WebLink = "https://example.test/x"
	mustUpsert(t, s, r)
	if _, err := s.ToggleStarred(ctx, r.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	rescan := localRecord("/a/x.jpg", "x.jpg")
	rescan.Description = "   "
	res := mustUpsert(t, s, rescan)
	if res.Preserved != 1 {
		t.Fatalf("preserved=%d", res.Preserved)
	}

	got, _ := s.Get(ctx, r.ID)
	if got.Description != "curated" || got.WebLink != "https://example.test/x" || !got.Starred {
		t.Fatalf("got %+v", got)
	}

	if _, err := s.UpsertBatch(ctx, []model.FileRecord{rescan}, store.UpsertOptions{AllowDescriptionOverwrite: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = s.Get(ctx, r.ID)
	if got.Description != "   " {
		t.Fatalf("description=%q", got.Description)
	}
}

func TestUpsertBatch_RemoteDescriptionIsReplaced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := remoteRecord("r1", "a.pdf")
	r.Description = "old"
	mustUpsert(t, s, r)
	r.Description = ""
	mustUpsert(t, s, r)

	got, _ := s.Get(ctx, "r1")
	if got.Description != "" {
		t.Fatalf("description=%q", got.Description)
	}
}

func TestUpsertBatch_InjectedFailureRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	orig := localRecord("/a/keep.txt", "keep.txt")
	orig.Description = "before"
	mustUpsert(t, s, orig)
	before, _ := s.Version(ctx)

	changed := orig
	changed.Description = "after"
	batch := []model.FileRecord{changed, localRecord("/a/new1.txt", "new1.txt"), localRecord("/a/new2.txt", "new2.txt")}
	_, err := s.UpsertBatch(ctx, batch, store.UpsertOptions{FailAfter: 2})
	if !errors.Is(err, store.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	n, _ := s.Count(ctx, nil)
	fts, _ := s.SearchIndexCount(ctx)
	if n != 1 || fts != 1 {
		t.Fatalf("files=%d search_index=%d", n, fts)
	}
	got, _ := s.Get(ctx, orig.ID)
	if got.Description != "before" {
		t.Fatalf("description=%q", got.Description)
	}
	if _, err := s.Get(ctx, "/a/new1.txt"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("new1 should not exist: %v", err)
	}
	after, _ := s.Version(ctx)
	if after != before {
		t.Fatalf("version moved on rollback: %d -> %d", before, after)
	}
}

func TestUpsertBatch_RejectsMissingID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpsertBatch(context.Background(), []model.FileRecord{localRecord("/a", "a"), {Name: "x", Source: model.SourceLocal}}, store.UpsertOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if n, _ := s.Count(context.Background(), nil); n != 0 {
		t.Fatalf("count=%d", n)
	}
}

func TestUpsertBatch_SkipStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fresh := remoteRecord("r1", "new name.txt")
	fresh.ModifiedTime = 200
	mustUpsert(t, s, fresh)

	stale := remoteRecord("r1", "old name.txt")
	stale.ModifiedTime = 100
	res, err := s.UpsertBatch(ctx, []model.FileRecord{stale}, store.UpsertOptions{SkipStale: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Stale != 1 || res.Written != 0 {
		t.Fatalf("res=%+v", res)
	}
	got, _ := s.Get(ctx, "r1")
	if got.Name != "new name.txt" {
		t.Fatalf("name=%q", got.Name)
	}
}

func TestVersion_BumpsOnMutation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v0, _ := s.Version(ctx)
	mustUpsert(t, s, localRecord("/a", "a"))
	v1, _ := s.Version(ctx)
	if err := s.SetStarred(ctx, "/a", true); err != nil {
		t.Fatalf("star: %v", err)
	}
	v2, _ := s.Version(ctx)
	if !(v0 < v1 && v1 < v2) {
		t.Fatalf("versions %d %d %d", v0, v1, v2)
	}
}

func TestUpdateMetadata_MirrorsSearchIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := localRecord("/a/x.jpg", "x.jpg")
	r.ThumbnailLink = "thumb"
	mustUpsert(t, s, r)

	link := "https://example.test/view"
	if err := s.UpdateMetadata(ctx, r.ID, store.Metadata{Description: "Praia em Família", WebLink: &link}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(ctx, r.ID)
	if got.Description != "Praia em Família" || got.WebLink != link || got.ThumbnailLink != "thumb" {
		t.Fatalf("got %+v", got)
	}

	ids, err := s.SearchIDs(ctx, `"familia"`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ids) != 1 || ids[0] != r.ID {
		t.Fatalf("ids=%v", ids)
	}

	if err := s.UpdateMetadata(ctx, "missing", store.Metadata{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteByIDs_Chunked(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var recs []model.FileRecord
	var ids []string
	for i := 0; i < 1200; i++ {
		id := fmt.Sprintf("r%04d", i)
		recs = append(recs, remoteRecord(id, id+".txt"))
		ids = append(ids, id)
	}
	recs = append(recs, localRecord("/keep", "keep"))
	mustUpsert(t, s, recs...)

	n, err := s.DeleteByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1200 {
		t.Fatalf("deleted=%d", n)
	}
	left, _ := s.Count(ctx, nil)
	fts, _ := s.SearchIndexCount(ctx)
	if left != 1 || fts != 1 {
		t.Fatalf("files=%d search_index=%d", left, fts)
	}
}

func TestSearchIDs_BadPredicate(t *testing.T) {
	s := openTestStore(t)
	mustUpsert(t, s, localRecord("/a", "abc.txt"))

	_, err := s.SearchIDs(context.Background(), `"unbalanced`)
	if !errors.Is(err, store.ErrBadPredicate) {
		t.Fatalf("expected bad predicate, got %v", err)
	}
}

func TestOpen_RebuildsIncompatibleSearchIndex(t *testing.T) {
	dbPath := t.TempDir() + "/catalog.db"
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustUpsert(t, s, localRecord("/a/José.pdf", "José.pdf"), remoteRecord("r1", "Relatório.docx"))

	if _, err := s.db.Exec(`DROP TABLE search_index`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE search_index USING fts5(name, file_id UNINDEXED)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = s.Close()

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	fts, _ := s.SearchIndexCount(ctx)
	if fts != 2 {
		t.Fatalf("search_index=%d", fts)
	}
	ids, err := s.SearchIDs(ctx, `"relatorio"`)
	if err != nil || len(ids) != 1 || ids[0] != "r1" {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
}

func TestFindLocal_Lookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := localRecord("/a/Foto Família.jpg", "Foto Família.jpg")
	older.ModifiedTime = 10
	newer := localRecord("/b/foto família.JPG", "foto família.JPG")
	newer.ModifiedTime = 20
	mustUpsert(t, s, older, newer, localRecord("/c/foto_familia (2).png", "foto_familia (2).png"),
		remoteRecord("r1", "Foto Família.jpg"))

	got, err := s.FindLocalByName(ctx, "FOTO FAMÍLIA.JPG")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	// LOWER() folds ASCII only, so the accented capital does not match.
	if len(got) != 0 {
		t.Fatalf("by name=%v", ids(got))
	}

	got, _ = s.FindLocalByName(ctx, "foto família.jpg")
	if len(got) != 2 || got[0].ID != newer.ID {
		t.Fatalf("by name=%v", ids(got))
	}

	got, _ = s.FindLocalByNormalized(ctx, "foto familia.jpg")
	if len(got) != 2 {
		t.Fatalf("by normalized=%v", ids(got))
	}

	got, _ = s.FindLocalByAggressive(ctx, "fotofamilia")
	if len(got) != 2 {
		t.Fatalf("by aggressive=%v", ids(got))
	}

	got, _ = s.FindLocalByAggressivePrefix(ctx, "fotofam")
	if len(got) != 3 {
		t.Fatalf("by prefix=%v", ids(got))
	}
	for _, r := range got {
		if r.Source != model.SourceLocal {
			t.Fatalf("non-local row %s", r.ID)
		}
	}
}

func TestToggleStarredAndBreadcrumb(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	root := localRecord("/r", "r")
	root.MimeType = model.MimeFolder
	child := localRecord("/r/c", "c")
	child.ParentID = "/r"
	child.MimeType = model.MimeFolder
	leaf := localRecord("/r/c/f.txt", "f.txt")
	leaf.ParentID = "/r/c"
	mustUpsert(t, s, root, child, leaf)

	on, err := s.ToggleStarred(ctx, leaf.ID)
	if err != nil || !on {
		t.Fatalf("toggle on=%v err=%v", on, err)
	}
	on, _ = s.ToggleStarred(ctx, leaf.ID)
	if on {
		t.Fatal("expected toggle off")
	}
	if _, err := s.ToggleStarred(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	chain, err := s.Breadcrumb(ctx, leaf.ID)
	if err != nil {
		t.Fatalf("breadcrumb: %v", err)
	}
	if len(chain) != 3 || chain[0].ID != "/r" || chain[2].ID != leaf.ID {
		t.Fatalf("chain=%v", ids(chain))
	}
}

func TestClearSourceAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, localRecord("/a", "a"), remoteRecord("r1", "b"), remoteRecord("r2", "c"))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.BySource[model.SourceRemote] != 2 {
		t.Fatalf("stats=%+v", st)
	}

	n, err := s.ClearSource(ctx, model.SourceRemote)
	if err != nil || n != 2 {
		t.Fatalf("cleared=%d err=%v", n, err)
	}
	left, _ := s.Count(ctx, filter.Equals{Field: filter.FieldSource, Value: "local"})
	fts, _ := s.SearchIndexCount(ctx)
	if left != 1 || fts != 1 {
		t.Fatalf("left=%d search_index=%d", left, fts)
	}
}

func TestFetchPage_SortAndPaging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i, name := range []string{"b.txt", "A.txt", "c.txt", "a.txt"} {
		r := localRecord(fmt.Sprintf("/%d", i), name)
		r.Size = int64(i)
		mustUpsert(t, s, r)
	}

	page, err := s.FetchPage(ctx, store.PageQuery{Sort: store.SortNameAsc, Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := ids(page); fmt.Sprint(got) != "[/1 /3 /0]" {
		t.Fatalf("page1=%v", got)
	}
	page, _ = s.FetchPage(ctx, store.PageQuery{Sort: store.SortNameAsc, Page: 2, PageSize: 3})
	if got := ids(page); fmt.Sprint(got) != "[/2]" {
		t.Fatalf("page2=%v", got)
	}
	page, _ = s.FetchPage(ctx, store.PageQuery{Sort: store.SortSizeDesc, Page: 1, PageSize: 2})
	if got := ids(page); fmt.Sprint(got) != "[/3 /2]" {
		t.Fatalf("size desc=%v", got)
	}
	if _, err := s.FetchPage(ctx, store.PageQuery{Sort: "bogus"}); err == nil {
		t.Fatal("expected sort error")
	}
}

func ids(recs []model.FileRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
