package store

import (
	"context"
	"errors"

	"filecatalog/internal/index/filter"
	"filecatalog/internal/model"
)

var (
	ErrNotOpen      = errors.New("store is not open")
	ErrNotFound     = errors.New("record not found")
	ErrBadPredicate = errors.New("malformed search predicate")
	ErrInjected     = errors.New("injected batch failure")
)

type SortKey string

const (
	SortNameAsc      SortKey = "name_asc"
	SortNameDesc     SortKey = "name_desc"
	SortSizeAsc      SortKey = "size_asc"
	SortSizeDesc     SortKey = "size_desc"
	SortCreatedAsc   SortKey = "created_asc"
	SortCreatedDesc  SortKey = "created_desc"
	SortModifiedAsc  SortKey = "modified_asc"
	SortModifiedDesc SortKey = "modified_desc"
)

func ParseSort(s string) (SortKey, bool) {
	switch k := SortKey(s); k {
	case "":
		return SortNameAsc, true
	case SortNameAsc, SortNameDesc, SortSizeAsc, SortSizeDesc,
		SortCreatedAsc, SortCreatedDesc, SortModifiedAsc, SortModifiedDesc:
		return k, true
	default:
		return "", false
	}
}

type PageQuery struct {
	Filter   filter.Expr
	Sort     SortKey
	Page     int
	PageSize int
}

type UpsertOptions struct {
	Source model.Source
	// AllowDescriptionOverwrite lets a blank incoming description replace a
	// stored one on local rows.
	AllowDescriptionOverwrite bool
	// SkipStale keeps the stored row when it is newer than the incoming one.
	SkipStale bool
	// FailAfter aborts the batch after that many records were written.
	FailAfter int
}

type UpsertResult struct {
	Written   int
	Preserved int
	Stale     int
}

// Metadata is a partial update; nil link fields are left untouched.
type Metadata struct {
	Description   string
	WebLink       *string
	ThumbnailLink *string
}

type Stats struct {
	Total    int
	BySource map[model.Source]int
	Starred  int
	Version  int64
}

type Reader interface {
	Get(ctx context.Context, id string) (model.FileRecord, error)
	GetMany(ctx context.Context, ids []string) ([]model.FileRecord, error)
	FetchPage(ctx context.Context, q PageQuery) ([]model.FileRecord, error)
	FetchAll(ctx context.Context, f filter.Expr, sort SortKey) ([]model.FileRecord, error)
	Count(ctx context.Context, f filter.Expr) (int, error)
	SearchIDs(ctx context.Context, predicate string) ([]string, error)
	Version(ctx context.Context) (int64, error)
}

type Writer interface {
	UpsertBatch(ctx context.Context, records []model.FileRecord, opts UpsertOptions) (UpsertResult, error)
	UpdateMetadata(ctx context.Context, id string, md Metadata) error
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// LocalIndex answers the matcher's lookups over local rows only.
type LocalIndex interface {
	FindLocalByName(ctx context.Context, name string) ([]model.FileRecord, error)
	FindLocalByNormalized(ctx context.Context, normalized string) ([]model.FileRecord, error)
	FindLocalByAggressive(ctx context.Context, aggressive string) ([]model.FileRecord, error)
	FindLocalByAggressivePrefix(ctx context.Context, prefix string) ([]model.FileRecord, error)
}

type Catalog interface {
	Reader
	Writer
	LocalIndex
	Close() error
}
