package scan

import (
	"strconv"
	"strings"
	"time"
)

// ArchiveFolder names the archival tree whose next path segment is the year
// its contents belong to.
const ArchiveFolder = "Banco de Imagens"

// ArchiveYear returns the year segment following ArchiveFolder in p.
func ArchiveYear(p string) (int, bool) {
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	for i, part := range parts {
		if part != ArchiveFolder {
			continue
		}
		if i+1 >= len(parts) {
			return 0, false
		}
		year, err := strconv.Atoi(strings.TrimSpace(parts[i+1]))
		if err != nil || year <= 0 {
			return 0, false
		}
		return year, true
	}
	return 0, false
}

// EffectiveCreatedTime is the older of ctime and mtime, moved back to
// January 1st (UTC) of the archive year when p sits in an archive year
// folder older than that.
func EffectiveCreatedTime(p string, ctime, mtime int64) int64 {
	oldest := min(ctime, mtime)
	year, ok := ArchiveYear(p)
	if ok && year < time.Unix(oldest, 0).Year() {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	}
	return oldest
}
