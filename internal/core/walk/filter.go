package walk

import (
	"path"
	"path/filepath"
	"strings"
)

// Filter decides which entries under one root reach the catalog.
type Filter struct {
	opts Options
	ig   *ignoreMatcher
}

func NewFilter(root string, opts Options) (*Filter, error) {
	ig, err := loadIgnoreMatcher(root, opts.RespectIgnore)
	if err != nil {
		return nil, err
	}
	return &Filter{
		opts: opts,
		ig:   ig,
	}, nil
}

// ShouldInclude reports whether the entry at rel (slash separated, relative
// to the filter's root) is cataloged.
func (f *Filter) ShouldInclude(rel string, isDir bool) bool {
	if f == nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	name := path.Base(rel)

	if isDir {
		if f.opts.SkipHidden && isHidden(name) {
			return false
		}
		if f.opts.RespectIgnore && (isDefaultSkippedDir(name) || f.ig.isIgnored(rel, true)) {
			return false
		}
		return !anyGlobMatch(f.opts.ExcludeGlobs, rel)
	}

	if IsSystemFile(name) {
		return false
	}
	if f.opts.SkipHidden && isHidden(name) {
		return false
	}
	if f.opts.RespectIgnore && f.ig.isIgnored(rel, false) {
		return false
	}
	return !anyGlobMatch(f.opts.ExcludeGlobs, rel)
}

// IsSystemFile reports files that are never cataloged.
func IsSystemFile(name string) bool {
	return strings.EqualFold(name, "desktop.ini")
}
