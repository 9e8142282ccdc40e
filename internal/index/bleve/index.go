// Package bleve keeps a bleve mirror of the catalog's searchable text. The
// mirror is rebuilt lazily whenever the catalog version moves past the one it
// was last synced to; per-record fingerprints live in a bbolt side file so a
// resync only touches changed records.
package bleve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	"go.etcd.io/bbolt"

	"filecatalog/internal/core/query"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
	"filecatalog/internal/normalize"
)

const syncBatchSize = 500

var searchFields = []string{"normalized_name", "normalized_description"}

type Index struct {
	mu   sync.Mutex
	idx  bleve.Index
	meta *bbolt.DB
	src  store.Reader
	log  *slog.Logger
}

func Open(path string, src store.Reader) (*Index, error) {
	return OpenWithLogger(path, src, nil)
}

func OpenWithLogger(path string, src store.Reader, logger *slog.Logger) (*Index, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if src == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	var idx bleve.Index
	if _, err := os.Stat(filepath.Join(path, "index_meta.json")); err == nil {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, err
		}
	}

	meta, err := bbolt.Open(filepath.Join(path, "mirror-meta.db"), 0o600, nil)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	x := &Index{idx: idx, meta: meta, src: src, log: logger}
	if err := x.ensureBuckets(); err != nil {
		_ = meta.Close()
		_ = idx.Close()
		return nil, err
	}
	return x, nil
}

func (x *Index) Close() error {
	if x == nil {
		return nil
	}
	if x.idx != nil {
		_ = x.idx.Close()
	}
	if x.meta != nil {
		_ = x.meta.Close()
	}
	return nil
}

func (x *Index) Name() string { return "bleve" }

// Sync brings the mirror up to the catalog's current version and returns the
// number of documents indexed or deleted.
func (x *Index) Sync(ctx context.Context) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.syncLocked(ctx)
}

func (x *Index) syncLocked(ctx context.Context) (int, error) {
	ver, err := x.src.Version(ctx)
	if err != nil {
		return 0, err
	}
	built, err := x.BuiltVersion()
	if err != nil {
		return 0, err
	}
	if built == ver {
		return 0, nil
	}

	recs, err := x.src.FetchAll(ctx, nil, store.SortNameAsc)
	if err != nil {
		return 0, err
	}
	old, err := x.loadDocs()
	if err != nil {
		return 0, err
	}

	put := map[string]docMeta{}
	batch := x.idx.NewBatch()
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		m := docMeta{Name: r.Name, Description: r.Description, Source: string(r.Source)}
		prev, seen := old[r.ID]
		delete(old, r.ID)
		if seen && prev == m {
			continue
		}
		if err := batch.Index(r.ID, document(r)); err != nil {
			return 0, err
		}
		put[r.ID] = m
		if batch.Size() >= syncBatchSize {
			if err := x.idx.Batch(batch); err != nil {
				return 0, err
			}
			batch.Reset()
		}
	}
	del := make([]string, 0, len(old))
	for id := range old {
		batch.Delete(id)
		del = append(del, id)
	}
	if batch.Size() > 0 {
		if err := x.idx.Batch(batch); err != nil {
			return 0, err
		}
	}
	if err := x.saveDocs(put, del, ver); err != nil {
		return 0, err
	}
	x.log.Debug("bleve mirror synced", "version", ver, "indexed", len(put), "deleted", len(del))
	return len(put) + len(del), nil
}

// SearchIDs syncs the mirror if needed and returns the ids of records whose
// normalized name or description matches p.
func (x *Index) SearchIDs(ctx context.Context, p query.Parsed) ([]string, error) {
	if x == nil || x.idx == nil {
		return nil, store.ErrNotOpen
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.syncLocked(ctx); err != nil {
		return nil, err
	}
	q, ok := buildQuery(p)
	if !ok {
		return nil, nil
	}
	total, err := x.idx.DocCount()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(q, int(total), 0, false)
	req.SortBy([]string{"_id"})
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBadPredicate, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DocCount is the number of documents in the mirror.
func (x *Index) DocCount() (int, error) {
	n, err := x.idx.DocCount()
	return int(n), err
}

func buildQuery(p query.Parsed) (bquery.Query, bool) {
	if !p.HasText() {
		return nil, false
	}
	bq := bleve.NewBooleanQuery()
	terms, alternatives := p.Positive()
	if alternatives {
		alts := make([]bquery.Query, 0, len(terms))
		for _, g := range terms {
			alts = append(alts, termQuery(g))
		}
		bq.AddMust(bleve.NewDisjunctionQuery(alts...))
	} else {
		for _, t := range terms {
			bq.AddMust(termQuery(t))
		}
	}
	for _, ex := range p.Exclude {
		bq.AddMustNot(termQuery(ex))
	}
	return bq, true
}

// termQuery matches t anywhere inside a token of any search field. Terms
// that are not a single word fall back to phrase matching.
func termQuery(t string) bquery.Query {
	t = strings.TrimLeft(normalize.Normalize(t), "<&#@")
	qs := make([]bquery.Query, 0, len(searchFields))
	for _, f := range searchFields {
		if isWord(t) {
			q := bleve.NewWildcardQuery("*" + t + "*")
			q.SetField(f)
			qs = append(qs, q)
			continue
		}
		q := bleve.NewMatchPhraseQuery(t)
		q.SetField(f)
		qs = append(qs, q)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func isWord(t string) bool {
	if t == "" {
		return false
	}
	for _, r := range t {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func document(r model.FileRecord) map[string]any {
	return map[string]any{
		"name":                   r.Name,
		"description":            r.Description,
		"normalized_name":        normalize.Normalize(r.Name),
		"normalized_description": normalize.Normalize(r.Description),
		"source":                 string(r.Source),
	}
}

func buildMapping() mapping.IndexMapping {
	idxMapping := bleve.NewIndexMapping()
	idxMapping.DefaultAnalyzer = "standard"

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = false
	keyword.Index = true

	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"
	text.Store = false
	text.Index = true

	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("normalized_name", text)
	doc.AddFieldMappingsAt("normalized_description", text)
	doc.AddFieldMappingsAt("source", keyword)

	idxMapping.DefaultMapping = doc
	return idxMapping
}
