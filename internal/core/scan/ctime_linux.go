//go:build linux

package scan

import (
	"io/fs"
	"syscall"
)

// statCtime returns the inode change time, the closest Linux has to a
// creation time through stat(2).
func statCtime(fi fs.FileInfo) int64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return int64(st.Ctim.Sec)
	}
	return fi.ModTime().Unix()
}
