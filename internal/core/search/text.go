package search

import (
	"context"

	"filecatalog/internal/core/query"
	"filecatalog/internal/index/store"
)

// TextIndex resolves the text part of a parsed query to catalog ids.
type TextIndex interface {
	Name() string
	SearchIDs(ctx context.Context, p query.Parsed) ([]string, error)
}

// FTSIndex runs queries against the catalog's own FTS5 search index.
type FTSIndex struct {
	r store.Reader
}

func NewFTSIndex(r store.Reader) *FTSIndex {
	return &FTSIndex{r: r}
}

func (x *FTSIndex) Name() string { return "sqlite" }

func (x *FTSIndex) SearchIDs(ctx context.Context, p query.Parsed) ([]string, error) {
	expr, ok := query.Compile(p)
	if !ok {
		return nil, nil
	}
	return x.r.SearchIDs(ctx, expr)
}
