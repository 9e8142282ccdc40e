//go:build windows

package scan

import (
	"io/fs"
	"syscall"
)

func statCtime(fi fs.FileInfo) int64 {
	if st, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return st.CreationTime.Nanoseconds() / 1e9
	}
	return fi.ModTime().Unix()
}
