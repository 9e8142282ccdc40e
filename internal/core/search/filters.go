package search

import (
	"fmt"
	"strings"
	"time"

	"filecatalog/internal/core/query"
	"filecatalog/internal/index/filter"
	"filecatalog/internal/model"
)

const bytesPerMB = 1024 * 1024

const googleFolderMime = "application/vnd.google-apps.folder"

// Categories group file names by extension.
var Categories = map[string][]string{
	"images":    {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg", ".ico", ".tiff", ".heic", ".arw", ".cr2", ".nef", ".dng", ".raf", ".orf", ".srw"},
	"videos":    {".mp4", ".avi", ".mov", ".wmv", ".flv", ".mkv", ".webm", ".m4v", ".3gp"},
	"documents": {".pdf", ".doc", ".docx", ".txt", ".rtf", ".odt", ".xls", ".xlsx", ".ppt", ".pptx"},
	"audios":    {".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", ".m4a"},
}

const CategoryOther = "other"

// Advanced holds the optional structural filters of a request. Zero values
// are unset.
type Advanced struct {
	Starred        bool
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	ModifiedAfter  *time.Time
	ModifiedBefore *time.Time
	SizeMinMB      float64
	SizeMaxMB      float64
	Extensions     []string
	MimeType       string
}

func sourceFilter(src string, restrictLocal bool) (filter.Expr, error) {
	if restrictLocal {
		return filter.Equals{Field: filter.FieldSource, Value: string(model.SourceLocal)}, nil
	}
	switch strings.ToLower(strings.TrimSpace(src)) {
	case "", "all":
		return nil, nil
	}
	s, ok := model.ParseSource(src)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", src)
	}
	if s == model.SourceRemote {
		return filter.OneOf{Field: filter.FieldSource, Values: []any{string(model.SourceRemote), "drive"}}, nil
	}
	return filter.Equals{Field: filter.FieldSource, Value: string(s)}, nil
}

// typeFilter maps an extension category or a mime class to an expression.
func typeFilter(name string) (filter.Expr, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if exts, ok := Categories[name]; ok {
		return filter.HasSuffix{Field: filter.FieldName, Suffixes: exts}, nil
	}
	switch name {
	case "", "all":
		return nil, nil
	case CategoryOther, "others":
		var all []string
		for _, exts := range Categories {
			all = append(all, exts...)
		}
		return filter.Not{X: filter.HasSuffix{Field: filter.FieldName, Suffixes: all}}, nil
	case "image":
		return filter.Contains{Field: filter.FieldMimeType, Sub: "image/"}, nil
	case "document":
		return filter.Or{
			filter.Equals{Field: filter.FieldMimeType, Value: "application/vnd.google-apps.document"},
			filter.Equals{Field: filter.FieldMimeType, Value: "application/pdf"},
			filter.Contains{Field: filter.FieldMimeType, Sub: "wordprocessingml.document"},
		}, nil
	case "spreadsheet":
		return filter.Or{
			filter.Equals{Field: filter.FieldMimeType, Value: "application/vnd.google-apps.spreadsheet"},
			filter.Contains{Field: filter.FieldMimeType, Sub: "spreadsheetml.sheet"},
		}, nil
	case "presentation":
		return filter.Or{
			filter.Equals{Field: filter.FieldMimeType, Value: "application/vnd.google-apps.presentation"},
			filter.Contains{Field: filter.FieldMimeType, Sub: "presentationml.presentation"},
		}, nil
	case "folder":
		return filter.OneOf{Field: filter.FieldMimeType, Values: []any{model.MimeFolder, googleFolderMime}}, nil
	default:
		return nil, fmt.Errorf("unknown type filter %q", name)
	}
}

func notFolder() filter.Expr {
	return filter.Or{
		filter.Blank{Field: filter.FieldMimeType},
		filter.Not{X: filter.OneOf{Field: filter.FieldMimeType, Values: []any{model.MimeFolder, googleFolderMime}}},
	}
}

func advancedFilter(a Advanced) filter.Expr {
	var parts []filter.Expr
	if a.Starred {
		parts = append(parts, filter.Equals{Field: filter.FieldStarred, Value: true})
	}
	parts = append(parts,
		timeRange(filter.FieldCreatedTime, a.CreatedAfter, a.CreatedBefore),
		timeRange(filter.FieldModifiedTime, a.ModifiedAfter, a.ModifiedBefore),
	)
	if a.SizeMinMB > 0 || a.SizeMaxMB > 0 {
		r := filter.Range{Field: filter.FieldSize}
		if a.SizeMinMB > 0 {
			r.Min = filter.Int(int64(a.SizeMinMB * bytesPerMB))
		}
		if a.SizeMaxMB > 0 {
			r.Max = filter.Int(int64(a.SizeMaxMB * bytesPerMB))
		}
		parts = append(parts, r)
	}
	if exts := cleanExtensions(a.Extensions); len(exts) > 0 {
		parts = append(parts, filter.HasSuffix{Field: filter.FieldName, Suffixes: exts}, notFolder())
	}
	if m := strings.TrimSpace(a.MimeType); m != "" {
		parts = append(parts, filter.Equals{Field: filter.FieldMimeType, Value: m})
	}
	return filter.AllOf(parts...)
}

func queryFilter(f query.Filters) filter.Expr {
	var parts []filter.Expr
	if f.Starred {
		parts = append(parts, filter.Equals{Field: filter.FieldStarred, Value: true})
	}
	parts = append(parts, timeRange(filter.FieldCreatedTime, f.CreatedAfter, f.CreatedBefore))
	return filter.AllOf(parts...)
}

func timeRange(field filter.Field, after, before *time.Time) filter.Expr {
	if after == nil && before == nil {
		return nil
	}
	r := filter.Range{Field: field}
	if after != nil {
		r.Min = filter.Int(after.Unix())
	}
	if before != nil {
		r.Max = filter.Int(before.Unix())
	}
	return r
}

func cleanExtensions(in []string) []string {
	var out []string
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func folderScope(folderID string) filter.Expr {
	if folderID = strings.TrimSpace(folderID); folderID != "" {
		return filter.Equals{Field: filter.FieldParentID, Value: folderID}
	}
	return filter.Blank{Field: filter.FieldParentID}
}
