// Package remote pages a cloud-storage listing into the catalog.
package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"filecatalog/internal/model"
)

// TimeLayout is the wire format of remote timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z"

const FolderMimeType = "application/vnd.google-apps.folder"

// Item is one file as the remote listing returns it.
type Item struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MimeType      string   `json:"mimeType"`
	Description   string   `json:"description,omitempty"`
	ThumbnailLink string   `json:"thumbnailLink,omitempty"`
	WebViewLink   string   `json:"webViewLink,omitempty"`
	Size          string   `json:"size,omitempty"`
	ModifiedTime  string   `json:"modifiedTime,omitempty"`
	CreatedTime   string   `json:"createdTime,omitempty"`
	Parents       []string `json:"parents,omitempty"`
}

type PageRequest struct {
	Token         string
	PageSize      int
	ModifiedAfter time.Time
	// ParentIDs restricts the listing to direct children of these folders.
	ParentIDs   []string
	FoldersOnly bool
	Fields      string
}

type Page struct {
	Items     []Item `json:"files"`
	NextToken string `json:"nextPageToken,omitempty"`
}

// Lister is the authenticated listing capability supplied by the credential
// collaborator.
type Lister interface {
	List(ctx context.Context, req PageRequest) (Page, error)
}

func (it Item) ParentID() string {
	if len(it.Parents) == 0 {
		return ""
	}
	return it.Parents[0]
}

func (it Item) IsFolder() bool {
	return it.MimeType == FolderMimeType
}

// Record maps the item to a remote catalog row. Unparseable sizes and
// timestamps become zero.
func (it Item) Record() model.FileRecord {
	size, err := strconv.ParseInt(strings.TrimSpace(it.Size), 10, 64)
	if err != nil || size < 0 {
		size = 0
	}
	return model.FileRecord{
		ID:            it.ID,
		Name:          it.Name,
		MimeType:      it.MimeType,
		Source:        model.SourceRemote,
		Description:   it.Description,
		ThumbnailLink: it.ThumbnailLink,
		Size:          size,
		ModifiedTime:  parseTime(it.ModifiedTime),
		CreatedTime:   parseTime(it.CreatedTime),
		ParentID:      it.ParentID(),
		WebLink:       it.WebViewLink,
	}
}

func parseTime(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.Unix()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Unix()
	}
	return 0
}

// StatusError is a non-2xx listing response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote listing: http status %d", e.Code)
	}
	return fmt.Sprintf("remote listing: http status %d: %s", e.Code, e.Body)
}
