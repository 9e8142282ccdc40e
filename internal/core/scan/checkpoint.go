package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	progressFile   = "scan_progress.txt"
	LocalSyncFile  = "last_local_sync.txt"
	RemoteSyncFile = "last_remote_sync.txt"

	// SyncTimeLayout is the on-disk format of last-sync timestamps.
	SyncTimeLayout = "2006-01-02T15:04:05.000Z"
)

// StateDir holds the scanner's checkpoint and last-sync files.
type StateDir string

func (d StateDir) path(name string) string {
	return filepath.Join(string(d), name)
}

func (d StateDir) readFile(name string) (string, bool, error) {
	if d == "" {
		return "", false, nil
	}
	raw, err := os.ReadFile(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(string(raw)), true, nil
}

func (d StateDir) writeFile(name, value string) error {
	if d == "" {
		return nil
	}
	if err := os.MkdirAll(string(d), 0o755); err != nil {
		return err
	}
	tmp := d.path(name + ".tmp")
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.path(name))
}

// Checkpoint is the last directory a scan started, or "".
func (d StateDir) Checkpoint() (string, error) {
	v, _, err := d.readFile(progressFile)
	return v, err
}

func (d StateDir) SaveCheckpoint(dir string) error {
	return d.writeFile(progressFile, dir)
}

func (d StateDir) ClearCheckpoint() error {
	if d == "" {
		return nil
	}
	err := os.Remove(d.path(progressFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LastSync reads a last-sync timestamp file. ok is false when none was
// recorded yet.
func (d StateDir) LastSync(name string) (t time.Time, ok bool, err error) {
	v, found, err := d.readFile(name)
	if err != nil || !found || v == "" {
		return time.Time{}, false, err
	}
	t, err = time.Parse(SyncTimeLayout, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", name, err)
	}
	return t, true, nil
}

func (d StateDir) SaveLastSync(name string, t time.Time) error {
	return d.writeFile(name, t.UTC().Format(SyncTimeLayout))
}
