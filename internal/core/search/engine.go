// Package search answers paged catalog queries: free-text search through a
// text index plus structural filters, or folder browsing.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"filecatalog/internal/core/explain"
	"filecatalog/internal/core/query"
	"filecatalog/internal/index/filter"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

const (
	DefaultPageSize  = 50
	DefaultCacheSize = 256
	// IDChunkSize bounds the number of ids bound into one catalog query.
	IDChunkSize = 500
)

type Request struct {
	Source        string
	Page          int
	PageSize      int
	SearchTerm    string
	Sort          store.SortKey
	TypeFilter    string
	FolderID      string
	Advanced      Advanced
	RestrictLocal bool
}

type Options struct {
	CacheSize    int
	DisableCache bool
	// TextIndex defaults to the catalog's FTS5 index.
	TextIndex TextIndex
	Explain   explain.Explain
	// Location is used to read date operators in search terms.
	Location *time.Location
}

type Engine struct {
	cat   store.Reader
	text  TextIndex
	cache *pageCache
	ex    explain.Explain
	loc   *time.Location
}

func New(cat store.Reader, opts Options) *Engine {
	e := &Engine{
		cat:  cat,
		text: opts.TextIndex,
		ex:   opts.Explain,
		loc:  opts.Location,
	}
	if e.text == nil {
		e.text = NewFTSIndex(cat)
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if !opts.DisableCache {
		e.cache = newPageCache(opts.CacheSize)
	}
	return e
}

// WithExplain returns a copy of e reporting to ex. The cache is shared.
func (e *Engine) WithExplain(ex explain.Explain) *Engine {
	cp := *e
	cp.ex = ex
	return &cp
}

// Purge drops every cached page and count.
func (e *Engine) Purge() {
	e.cache.purge()
}

// LoadPage returns one page of records. Pages are 1-based.
func (e *Engine) LoadPage(ctx context.Context, req Request) ([]model.FileRecord, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	version, err := e.cat.Version(ctx)
	if err != nil {
		return nil, err
	}
	kv(e.ex, "text_index", e.text.Name())
	kv(e.ex, "catalog_version", version)
	return e.cache.loadPage(version, req, e.ex, func() ([]model.FileRecord, error) {
		if strings.TrimSpace(req.SearchTerm) == "" {
			return e.browse(ctx, req)
		}
		recs, err := e.search(ctx, req)
		if err != nil {
			return nil, err
		}
		return slicePage(recs, req.Page, req.PageSize), nil
	})
}

// Count returns the total number of records the request would page through.
func (e *Engine) Count(ctx context.Context, req Request) (int, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return 0, err
	}
	version, err := e.cat.Version(ctx)
	if err != nil {
		return 0, err
	}
	return e.cache.count(version, req, e.ex, func() (int, error) {
		if strings.TrimSpace(req.SearchTerm) == "" {
			f, err := browseFilter(req)
			if err != nil {
				return 0, err
			}
			return e.cat.Count(ctx, f)
		}
		recs, err := e.search(ctx, req)
		if err != nil {
			return 0, err
		}
		return len(recs), nil
	})
}

func (e *Engine) browse(ctx context.Context, req Request) ([]model.FileRecord, error) {
	if e.ex != nil {
		defer e.ex.Timer("browse")()
	}
	f, err := browseFilter(req)
	if err != nil {
		return nil, err
	}
	kv(e.ex, "path", "browse")
	return e.cat.FetchPage(ctx, store.PageQuery{
		Filter:   f,
		Sort:     req.Sort,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// search returns every record matching the request, sorted.
func (e *Engine) search(ctx context.Context, req Request) ([]model.FileRecord, error) {
	kv(e.ex, "path", "search")
	p := query.ParseIn(req.SearchTerm, e.loc)
	structural, err := structuralFilter(req)
	if err != nil {
		return nil, err
	}
	structural = filter.AllOf(structural, queryFilter(p.Filters))

	if !p.HasText() {
		kv(e.ex, "matched", 0)
		return nil, nil
	}

	var ids []string
	func() {
		if e.ex != nil {
			defer e.ex.Timer("text_index")()
		}
		ids, err = e.text.SearchIDs(ctx, p)
	}()
	if err != nil {
		if errors.Is(err, store.ErrBadPredicate) {
			kv(e.ex, "predicate_error", err.Error())
			return nil, nil
		}
		return nil, err
	}
	kv(e.ex, "matched", len(ids))
	if len(ids) == 0 {
		return nil, nil
	}

	if e.ex != nil {
		defer e.ex.Timer("filter")()
	}
	var out []model.FileRecord
	for start := 0; start < len(ids); start += IDChunkSize {
		end := min(start+IDChunkSize, len(ids))
		vals := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			vals = append(vals, id)
		}
		f := filter.AllOf(filter.OneOf{Field: filter.FieldID, Values: vals}, structural)
		recs, err := e.cat.FetchAll(ctx, f, req.Sort)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	SortRecords(out, req.Sort)
	return out, nil
}

func structuralFilter(req Request) (filter.Expr, error) {
	src, err := sourceFilter(req.Source, req.RestrictLocal)
	if err != nil {
		return nil, err
	}
	typ, err := typeFilter(req.TypeFilter)
	if err != nil {
		return nil, err
	}
	return filter.AllOf(src, typ, advancedFilter(req.Advanced)), nil
}

func browseFilter(req Request) (filter.Expr, error) {
	f, err := structuralFilter(req)
	if err != nil {
		return nil, err
	}
	return filter.AllOf(f, folderScope(req.FolderID)), nil
}

func normalizeRequest(req Request) (Request, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}
	k, ok := store.ParseSort(string(req.Sort))
	if !ok {
		return req, fmt.Errorf("unknown sort %q", req.Sort)
	}
	req.Sort = k
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	req.TypeFilter = strings.ToLower(strings.TrimSpace(req.TypeFilter))
	req.FolderID = strings.TrimSpace(req.FolderID)
	return req, nil
}

func slicePage(recs []model.FileRecord, page, size int) []model.FileRecord {
	start := (page - 1) * size
	if start >= len(recs) {
		return nil
	}
	end := min(start+size, len(recs))
	return recs[start:end]
}

// SortRecords orders recs the way the catalog orders a page, ties broken by id.
func SortRecords(recs []model.FileRecord, k store.SortKey) {
	compare := func(a, b model.FileRecord) int {
		switch k {
		case store.SortNameDesc:
			return -strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case store.SortSizeAsc:
			return cmpInt(a.Size, b.Size)
		case store.SortSizeDesc:
			return cmpInt(b.Size, a.Size)
		case store.SortCreatedAsc:
			return cmpInt(a.CreatedTime, b.CreatedTime)
		case store.SortCreatedDesc:
			return cmpInt(b.CreatedTime, a.CreatedTime)
		case store.SortModifiedAsc:
			return cmpInt(a.ModifiedTime, b.ModifiedTime)
		case store.SortModifiedDesc:
			return cmpInt(b.ModifiedTime, a.ModifiedTime)
		default:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if c := compare(recs[i], recs[j]); c != 0 {
			return c < 0
		}
		return recs[i].ID < recs[j].ID
	})
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func kv(ex explain.Explain, key string, value any) {
	if ex != nil {
		ex.KV(key, value)
	}
}

func unixOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmt.Sprint(t.Unix())
}
