//go:build darwin

package scan

import (
	"io/fs"
	"syscall"
)

func statCtime(fi fs.FileInfo) int64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Birthtimespec.Sec
	}
	return fi.ModTime().Unix()
}
