package search

import (
	"fmt"
	"strings"

	"filecatalog/internal/core/cache"
	"filecatalog/internal/core/explain"
	"filecatalog/internal/model"
)

type pageCache struct {
	pages  *cache.LRU[string, []model.FileRecord]
	counts *cache.LRU[string, int]
}

func newPageCache(size int) *pageCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &pageCache{
		pages:  cache.NewLRU[string, []model.FileRecord](size),
		counts: cache.NewLRU[string, int](size),
	}
}

func (c *pageCache) loadPage(version int64, req Request, ex explain.Explain, run func() ([]model.FileRecord, error)) ([]model.FileRecord, error) {
	if c == nil {
		return run()
	}
	key := makeCacheKey(version, req, true)
	if recs, ok := c.pages.Get(key); ok {
		kv(ex, "cache_hit", "lru")
		return cloneRecords(recs), nil
	}
	kv(ex, "cache_hit", "miss")
	recs, err := run()
	if err != nil {
		return nil, err
	}
	c.pages.Put(key, cloneRecords(recs))
	return recs, nil
}

func (c *pageCache) count(version int64, req Request, ex explain.Explain, run func() (int, error)) (int, error) {
	if c == nil {
		return run()
	}
	key := makeCacheKey(version, req, false)
	if n, ok := c.counts.Get(key); ok {
		kv(ex, "cache_hit", "lru")
		return n, nil
	}
	kv(ex, "cache_hit", "miss")
	n, err := run()
	if err != nil {
		return 0, err
	}
	c.counts.Put(key, n)
	return n, nil
}

func (c *pageCache) purge() {
	if c == nil {
		return
	}
	c.pages.Purge()
	c.counts.Purge()
}

// makeCacheKey stamps the catalog version into the key so any committed
// mutation makes older entries unreachable.
func makeCacheKey(version int64, req Request, paged bool) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ver=%d|src=%s|local=%t|q=%s", version, req.Source, req.RestrictLocal, strings.TrimSpace(req.SearchTerm))
	_, _ = fmt.Fprintf(&b, "|sort=%s|type=%s|folder=%s", req.Sort, req.TypeFilter, req.FolderID)
	if paged {
		_, _ = fmt.Fprintf(&b, "|page=%d|size=%d", req.Page, req.PageSize)
	}
	a := req.Advanced
	_, _ = fmt.Fprintf(&b, "|star=%t|ca=%s|cb=%s|ma=%s|mb=%s", a.Starred,
		unixOrEmpty(a.CreatedAfter), unixOrEmpty(a.CreatedBefore), unixOrEmpty(a.ModifiedAfter), unixOrEmpty(a.ModifiedBefore))
	_, _ = fmt.Fprintf(&b, "|min=%g|max=%g|mime=%s", a.SizeMinMB, a.SizeMaxMB, a.MimeType)
	if len(a.Extensions) > 0 {
		_, _ = fmt.Fprintf(&b, "|ext=%s", strings.Join(a.Extensions, ","))
	}
	return b.String()
}

func cloneRecords(recs []model.FileRecord) []model.FileRecord {
	if len(recs) == 0 {
		return nil
	}
	out := make([]model.FileRecord, len(recs))
	copy(out, recs)
	return out
}
