//go:build !linux && !darwin && !windows

package scan

import "io/fs"

func statCtime(fi fs.FileInfo) int64 {
	return fi.ModTime().Unix()
}
