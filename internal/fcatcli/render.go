package fcatcli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"filecatalog/internal/model"
)

func applyColor(opts *Options) {
	if opts.NoColor {
		color.NoColor = true
	}
}

func RenderJSONL(recs []model.FileRecord) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, r := range recs {
		_ = enc.Encode(r)
	}
	return b.String()
}

// RenderDefault prints one line per record: star, source, size, modified
// date, name and the path or link.
func RenderDefault(recs []model.FileRecord) string {
	var b strings.Builder
	for _, r := range recs {
		_, _ = fmt.Fprintf(&b, "%s %-6s %9s  %s  %s  %s\n",
			starMark(r.Starred),
			sourceLabel(r.Source),
			sizeLabel(r),
			dateLabel(r.ModifiedTime),
			nameLabel(r),
			location(r),
		)
	}
	return b.String()
}

func RenderRecord(r model.FileRecord) string {
	var b strings.Builder
	field := func(k, v string) {
		if v == "" {
			return
		}
		_, _ = fmt.Fprintf(&b, "%-15s %s\n", color.HiCyanString(k+":"), v)
	}
	field("id", r.ID)
	field("name", r.Name)
	field("source", string(r.Source))
	field("path", r.Path)
	field("mime", r.MimeType)
	field("size", fmt.Sprintf("%s (%s bytes)", humanize.Bytes(uint64(max(r.Size, 0))), humanize.Comma(r.Size)))
	field("modified", dateTime(r.ModifiedTime))
	field("created", dateTime(r.CreatedTime))
	field("parent", r.ParentID)
	field("description", r.Description)
	field("link", r.WebLink)
	field("thumbnail", r.ThumbnailLink)
	field("thumbnail_path", r.ThumbnailPath)
	if r.Starred {
		field("starred", "yes")
	}
	return b.String()
}

func writeOut(w io.Writer, s string) {
	_, _ = fmt.Fprint(w, s)
}

func starMark(starred bool) string {
	if starred {
		return color.YellowString("*")
	}
	return " "
}

func sourceLabel(s model.Source) string {
	label := fmt.Sprintf("%-6s", s)
	if s == model.SourceRemote {
		return color.MagentaString(label)
	}
	return color.GreenString(label)
}

func sizeLabel(r model.FileRecord) string {
	if r.IsFolder() {
		return "-"
	}
	return humanize.Bytes(uint64(max(r.Size, 0)))
}

func nameLabel(r model.FileRecord) string {
	if r.IsFolder() {
		return color.HiBlueString(r.Name + "/")
	}
	return color.New(color.Bold).Sprint(r.Name)
}

func location(r model.FileRecord) string {
	switch {
	case r.Path != "":
		return r.Path
	case r.WebLink != "":
		return r.WebLink
	default:
		return r.ID
	}
}

func dateLabel(sec int64) string {
	if sec <= 0 {
		return "          "
	}
	return time.Unix(sec, 0).Format("2006-01-02")
}

func dateTime(sec int64) string {
	if sec <= 0 {
		return ""
	}
	t := time.Unix(sec, 0)
	return fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), humanize.Time(t))
}
