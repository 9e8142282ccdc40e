package model

import "strings"

type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// ParseSource accepts the stored spellings of a source. "drive" is the
// legacy name of the remote source.
func ParseSource(s string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return SourceLocal, true
	case "remote", "drive":
		return SourceRemote, true
	default:
		return "", false
	}
}

const MimeFolder = "folder"

type FileRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Path          string `json:"path,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	Source        Source `json:"source"`
	Description   string `json:"description,omitempty"`
	ThumbnailLink string `json:"thumbnail_link,omitempty"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	Size          int64  `json:"size"`
	ModifiedTime  int64  `json:"modified_time"`
	CreatedTime   int64  `json:"created_time"`
	ParentID      string `json:"parent_id,omitempty"`
	WebLink       string `json:"web_link,omitempty"`
	Starred       bool   `json:"starred"`

	NormalizedName           string `json:"-"`
	NormalizedNameAggressive string `json:"-"`
}

func (r FileRecord) IsFolder() bool {
	return r.MimeType == MimeFolder || r.MimeType == "application/vnd.google-apps.folder"
}

// HasFusableMetadata reports whether a remote record carries anything worth
// merging into a local record.
func (r FileRecord) HasFusableMetadata() bool {
	return strings.TrimSpace(r.Description) != "" || r.WebLink != "" || r.ThumbnailLink != ""
}

type Progress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

type ProgressFunc func(Progress)

func (f ProgressFunc) Report(processed, total int, msg string) {
	if f == nil {
		return
	}
	f(Progress{Processed: processed, Total: total, Message: msg})
}
