package fcatd

import (
	"encoding/json"
	"time"

	"filecatalog/internal/core/scan"
	"filecatalog/internal/model"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
)

type SearchParams struct {
	Q         string `json:"q,omitempty"`
	Source    string `json:"source,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Type      string `json:"type,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
	LocalOnly bool   `json:"local_only,omitempty"`

	Starred        bool       `json:"starred,omitempty"`
	CreatedAfter   *time.Time `json:"created_after,omitempty"`
	CreatedBefore  *time.Time `json:"created_before,omitempty"`
	ModifiedAfter  *time.Time `json:"modified_after,omitempty"`
	ModifiedBefore *time.Time `json:"modified_before,omitempty"`
	SizeMinMB      float64    `json:"size_min_mb,omitempty"`
	SizeMaxMB      float64    `json:"size_max_mb,omitempty"`
	Extensions     []string   `json:"extensions,omitempty"`
	MimeType       string     `json:"mime_type,omitempty"`
}

type SearchResult struct {
	Items    []model.FileRecord `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Pages    int                `json:"pages"`
}

type IDParams struct {
	ID string `json:"id"`
}

type StarParams struct {
	ID      string `json:"id"`
	Starred bool   `json:"starred"`
}

type ThumbnailParams struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// MetadataParams replaces the description; nil links are left as stored.
type MetadataParams struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	WebLink       *string `json:"web_link,omitempty"`
	ThumbnailLink *string `json:"thumbnail_link,omitempty"`
}

type StatsResult struct {
	Total    int                  `json:"total"`
	BySource map[model.Source]int `json:"by_source"`
	Starred  int                  `json:"starred"`
	Version  int64                `json:"version"`
	Backend  string               `json:"backend"`
}

type ScanStartParams struct {
	Roots []string `json:"roots,omitempty"`
	Force bool     `json:"force,omitempty"`
}

type ScanStatusResult struct {
	State   string       `json:"state"`
	Running bool         `json:"running"`
	Last    *scan.Report `json:"last,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type WatchStartParams struct {
	SyncOnStart bool `json:"sync_on_start,omitempty"`
	DebounceMS  int  `json:"debounce_ms,omitempty"`
}

type WatchStatusResult struct {
	Running bool     `json:"running"`
	Roots   []string `json:"roots,omitempty"`
}
