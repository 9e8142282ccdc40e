// Package app wires a configured catalog: store, text index, search engine
// and the scan, ingest and fusion workers that write to it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"filecatalog/internal/config"
	"filecatalog/internal/core/explain"
	"filecatalog/internal/core/scan"
	"filecatalog/internal/core/search"
	"filecatalog/internal/fusion"
	"filecatalog/internal/index/backend"
	"filecatalog/internal/index/sqlite"
	"filecatalog/internal/remote"
)

type Env struct {
	Config *config.Config
	Log    *slog.Logger
	Store  *sqlite.Store
	Text   search.TextIndex
	Search *search.Engine

	closers []io.Closer
}

// Open opens the catalog named by cfg for reading and for user edits.
// Scanners and ingesters get their own connections.
func Open(cfg *config.Config, log *slog.Logger) (*Env, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = slog.Default()
	}
	st, err := sqlite.OpenWithLogger(cfg.Catalog.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.Catalog.DBPath, err)
	}
	env := &Env{Config: cfg, Log: log, Store: st}
	env.closers = append(env.closers, st)

	name := backend.NormalizeName(cfg.Catalog.Backend)
	path := cfg.Catalog.BlevePath
	if path == "" {
		path = backend.DefaultPath(cfg.Scan.StateDir, name)
	}
	text, closer, err := backend.Open(name, path, st, log)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.Text = text
	env.closers = append(env.closers, closer)

	env.Search = search.New(st, search.Options{
		CacheSize:    cfg.Search.CacheSize,
		DisableCache: cfg.Search.CacheSize == 0,
		TextIndex:    text,
	})
	return env, nil
}

// Close releases resources in reverse order of opening.
func (e *Env) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Track closes c along with the environment.
func (e *Env) Track(c io.Closer) {
	e.closers = append(e.closers, c)
}

// OpenWriter opens a separate connection for a background writer.
func (e *Env) OpenWriter() (*sqlite.Store, error) {
	st, err := sqlite.OpenWithLogger(e.Config.Catalog.DBPath, e.Log)
	if err != nil {
		return nil, err
	}
	e.Track(st)
	return st, nil
}

func (e *Env) NewScanner() (*scan.Scanner, error) {
	st, err := e.OpenWriter()
	if err != nil {
		return nil, err
	}
	if err := st.ApplyScanPragmas(context.Background()); err != nil {
		e.Log.Warn("scan pragmas not applied", "err", err)
	}
	return scan.New(st, scan.Config{StateDir: e.Config.Scan.StateDir, Logger: e.Log}), nil
}

// ScanOptions fills scan options from the configuration; roots given
// explicitly take precedence over configured ones.
func (e *Env) ScanOptions(roots []string, force bool) scan.Options {
	if len(roots) == 0 {
		roots = e.Config.Scan.Roots
	}
	return scan.Options{
		Roots:         roots,
		Force:         force,
		BatchSize:     e.Config.Scan.BatchSize,
		RespectIgnore: e.Config.Scan.RespectIgnore,
		SkipHidden:    e.Config.Scan.SkipHidden,
		Exclude:       e.Config.Scan.Exclude,
	}
}

// NewLister builds the HTTP lister from the remote section.
func (e *Env) NewLister() (remote.Lister, error) {
	rc := e.Config.Remote
	if strings.TrimSpace(rc.BaseURL) == "" {
		return nil, fmt.Errorf("remote.base_url is not configured")
	}
	return remote.NewHTTPLister(remote.HTTPOptions{
		BaseURL: rc.BaseURL,
		Tokens:  remote.EnvToken(rc.TokenEnv),
		Timeout: rc.TimeoutDuration,
	})
}

func (e *Env) NewIngester(l remote.Lister) (*remote.Ingester, error) {
	st, err := e.OpenWriter()
	if err != nil {
		return nil, err
	}
	return remote.New(l, st, remote.Config{StateDir: e.Config.Scan.StateDir, Logger: e.Log}), nil
}

func (e *Env) NewFusion(events fusion.EventSink, ex explain.Explain) (*fusion.Engine, error) {
	policy, err := fusion.ParsePolicy(e.Config.Fusion.Policy)
	if err != nil {
		return nil, err
	}
	return fusion.NewEngine(e.Store, fusion.Config{
		Policy:  policy,
		Logger:  e.Log,
		Events:  events,
		Explain: ex,
	}), nil
}

// IgnorePaths lists the files the catalog itself writes, so a watcher on a
// root containing them does not trigger on its own writes.
func (e *Env) IgnorePaths() []string {
	db := e.Config.Catalog.DBPath
	out := []string{db, db + "-wal", db + "-shm", db + "-journal"}
	if dir := e.Config.Scan.StateDir; dir != "" {
		out = append(out, filepath.Clean(dir))
	}
	if p := e.Config.Catalog.BlevePath; p != "" {
		out = append(out, filepath.Clean(p))
	}
	return out
}
