// Package scan walks local roots into the catalog in resumable, batched runs.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"filecatalog/internal/core/walk"
	"filecatalog/internal/index/filter"
	"filecatalog/internal/index/sqlite"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

const (
	DefaultBatchSize     = 200
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

var (
	ErrCancelled = errors.New("scan cancelled")
	ErrNoRoots   = errors.New("no scan roots")
)

type State int32

const (
	Idle State = iota
	Counting
	Walking
	Flushing
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Counting:
		return "counting"
	case Walking:
		return "walking"
	case Flushing:
		return "flushing"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Catalog is the part of the store the scanner writes through.
type Catalog interface {
	UpsertBatch(ctx context.Context, records []model.FileRecord, opts store.UpsertOptions) (store.UpsertResult, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	FetchAll(ctx context.Context, f filter.Expr, sort store.SortKey) ([]model.FileRecord, error)
}

type Config struct {
	StateDir      string
	Logger        *slog.Logger
	RetryAttempts int
	RetryDelay    time.Duration
	Now           func() time.Time
}

type Options struct {
	Roots         []string
	Force         bool
	BatchSize     int
	CountFirst    bool
	Progress      model.ProgressFunc
	RespectIgnore bool
	SkipHidden    bool
	Exclude       []string
}

type Report struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total,omitempty"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Deleted   int           `json:"deleted,omitempty"`
	Errors    int           `json:"errors"`
	Flushed   int           `json:"flushed"`
	State     State         `json:"-"`
	Duration  time.Duration `json:"duration"`
}

type Scanner struct {
	cat   Catalog
	state StateDir
	log   *slog.Logger

	attempts int
	delay    time.Duration
	now      func() time.Time

	runMu   sync.Mutex
	current atomic.Int32
	stopped atomic.Bool
}

func New(cat Catalog, cfg Config) *Scanner {
	s := &Scanner{
		cat:      cat,
		state:    StateDir(cfg.StateDir),
		log:      cfg.Logger,
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		now:      cfg.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.attempts <= 0 {
		s.attempts = DefaultRetryAttempts
	}
	if s.delay <= 0 {
		s.delay = DefaultRetryDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Scanner) State() State {
	return State(s.current.Load())
}

// Stop asks the running scan to finish at the next entry boundary.
func (s *Scanner) Stop() {
	s.stopped.Store(true)
}

func (s *Scanner) setState(st State) {
	s.current.Store(int32(st))
}

// Run scans every root into the catalog. A cancelled run returns
// ErrCancelled along with the partial report; batches flushed before the
// cancellation stay committed and the checkpoint is kept.
func (s *Scanner) Run(ctx context.Context, opts Options) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopped.Store(false)

	r, err := s.newRun(opts)
	if err != nil {
		return Report{}, err
	}
	log := r.log
	start := s.now()
	log.Info("local scan started", "roots", r.roots, "force", opts.Force)

	if !opts.Force {
		last, ok, err := s.state.LastSync(LocalSyncFile)
		if err != nil {
			log.Warn("ignoring unreadable last sync time", "err", err)
		} else if ok {
			r.cutoff = last.Unix()
		}
	}
	if cp, err := s.state.Checkpoint(); err != nil {
		log.Warn("ignoring unreadable checkpoint", "err", err)
	} else if _, ok := r.rootOf(cp); ok {
		r.resumeFrom = cp
		log.Info("resuming scan", "checkpoint", cp)
	}

	if opts.CountFirst {
		s.setState(Counting)
		for _, root := range r.roots {
			n, err := walk.Count(ctx, root, r.filters[root])
			if err != nil {
				if r.cancelled(ctx) {
					return s.finishCancelled(r, start), ErrCancelled
				}
				log.Warn("count failed", "root", root, "err", err)
				continue
			}
			r.report.Total += n
		}
		opts.Progress.Report(0, r.report.Total, fmt.Sprintf("found %s items", humanize.Comma(int64(r.report.Total))))
	}

	s.setState(Walking)
	for _, root := range r.roots {
		if err := r.walkDir(ctx, root, root, true); err != nil {
			if errors.Is(err, ErrCancelled) {
				return s.finishCancelled(r, start), ErrCancelled
			}
			s.setState(Idle)
			r.report.Duration = s.now().Sub(start)
			return r.report, err
		}
	}
	if err := r.flush(ctx); err != nil {
		if errors.Is(err, ErrCancelled) {
			return s.finishCancelled(r, start), ErrCancelled
		}
		s.setState(Idle)
		return r.report, err
	}

	if err := s.state.ClearCheckpoint(); err != nil {
		log.Warn("clear checkpoint", "err", err)
	}
	if err := s.state.SaveLastSync(LocalSyncFile, start); err != nil {
		log.Warn("save last sync time", "err", err)
	}
	s.setState(Done)
	r.report.State = Done
	r.report.Duration = s.now().Sub(start)
	opts.Progress.Report(r.report.Processed, r.report.Total, "done")
	log.Info("local scan finished",
		"processed", r.report.Processed,
		"skipped", r.report.Skipped,
		"errors", r.report.Errors,
		"duration", r.report.Duration,
	)
	return r.report, nil
}

func (s *Scanner) finishCancelled(r *run, start time.Time) Report {
	s.setState(Cancelled)
	r.report.State = Cancelled
	r.report.Duration = s.now().Sub(start)
	r.log.Info("local scan cancelled", "processed", r.report.Processed)
	return r.report
}

// ScanPaths re-reads individual paths under the configured roots: paths that
// exist are upserted (directories with their subtree), missing ones are
// deleted along with any cataloged descendants. Checkpoint and last-sync
// files are left alone.
func (s *Scanner) ScanPaths(ctx context.Context, opts Options, paths []string) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopped.Store(false)

	opts.Force = true
	r, err := s.newRun(opts)
	if err != nil {
		return Report{}, err
	}
	start := s.now()
	s.setState(Walking)

	var gone []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		root, ok := r.rootOf(abs)
		if !ok || abs == root {
			continue
		}
		fi, err := os.Lstat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, abs)
			continue
		}
		if err != nil {
			r.report.Errors++
			r.log.Warn("stat failed", "path", abs, "err", err)
			continue
		}
		rel, _ := filepath.Rel(root, abs)
		if !r.filters[root].ShouldInclude(rel, fi.IsDir()) {
			continue
		}
		if err := r.add(ctx, root, filepath.Dir(abs), abs, fi); err != nil {
			return r.report, err
		}
		if fi.IsDir() {
			if err := r.walkDir(ctx, root, abs, false); err != nil {
				return r.report, err
			}
		}
	}
	if err := r.flush(ctx); err != nil {
		return r.report, err
	}

	if len(gone) > 0 {
		ids, err := s.descendants(ctx, gone)
		if err != nil {
			return r.report, err
		}
		n, err := s.cat.DeleteByIDs(ctx, ids)
		if err != nil {
			return r.report, err
		}
		r.report.Deleted = n
	}
	s.setState(Done)
	r.report.State = Done
	r.report.Duration = s.now().Sub(start)
	r.log.Debug("paths rescanned", "paths", len(paths), "processed", r.report.Processed, "deleted", r.report.Deleted)
	return r.report, nil
}

// descendants expands ids with every cataloged record below them.
func (s *Scanner) descendants(ctx context.Context, ids []string) ([]string, error) {
	out := append([]string(nil), ids...)
	queue := append([]string(nil), ids...)
	seen := map[string]struct{}{}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		if _, ok := seen[parent]; ok {
			continue
		}
		seen[parent] = struct{}{}
		children, err := s.cat.FetchAll(ctx, filter.AllOf(
			filter.Equals{Field: filter.FieldSource, Value: string(model.SourceLocal)},
			filter.Equals{Field: filter.FieldParentID, Value: parent},
		), store.SortNameAsc)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			out = append(out, c.ID)
			if c.IsFolder() {
				queue = append(queue, c.ID)
			}
		}
	}
	return out, nil
}

func (s *Scanner) newRun(opts Options) (*run, error) {
	if len(opts.Roots) == 0 {
		return nil, ErrNoRoots
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	runID := uuid.NewString()
	r := &run{
		s:       s,
		opts:    opts,
		log:     s.log.With("run_id", runID),
		filters: map[string]*walk.Filter{},
		report:  Report{RunID: runID, State: Walking},
	}
	for _, root := range opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		abs = filepath.Clean(abs)
		if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
			r.log.Error("scan root is not a directory", "root", abs, "err", err)
			r.report.Errors++
			continue
		}
		f, err := walk.NewFilter(abs, walk.Options{
			RespectIgnore: opts.RespectIgnore,
			SkipHidden:    opts.SkipHidden,
			ExcludeGlobs:  opts.Exclude,
		})
		if err != nil {
			return nil, err
		}
		r.roots = append(r.roots, abs)
		r.filters[abs] = f
	}
	if len(r.roots) == 0 {
		return nil, fmt.Errorf("%w: none of %v is a directory", ErrNoRoots, opts.Roots)
	}
	return r, nil
}

// run is the state of one Run or ScanPaths invocation.
type run struct {
	s       *Scanner
	opts    Options
	log     *slog.Logger
	roots   []string
	filters map[string]*walk.Filter

	cutoff     int64
	resumeFrom string
	resumed    bool
	// walking is the directory saved as checkpoint on the next flush
	walking string

	batch  []model.FileRecord
	report Report
}

func (r *run) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || r.s.stopped.Load()
}

func (r *run) rootOf(abs string) (string, bool) {
	best := ""
	for _, root := range r.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best, best != ""
}

// walkDir catalogs the entries of dir and recurses into included
// subdirectories in name order.
func (r *run) walkDir(ctx context.Context, root, dir string, checkpoint bool) error {
	if r.cancelled(ctx) {
		return ErrCancelled
	}

	emit := true
	if r.resumeFrom != "" && !r.resumed {
		switch {
		case dir == r.resumeFrom:
			r.resumed = true
		case walkOrderBefore(dir, r.resumeFrom):
			emit = false
		default:
			r.resumed = true
		}
	}
	if emit && checkpoint {
		r.walking = dir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.report.Errors++
		r.log.Warn("read dir failed", "dir", dir, "err", err)
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var subdirs []string
	for _, e := range entries {
		if r.cancelled(ctx) {
			return ErrCancelled
		}
		p := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if !r.filters[root].ShouldInclude(rel, e.IsDir()) {
			continue
		}
		if e.IsDir() {
			subdirs = append(subdirs, p)
		}
		if !emit {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			r.report.Errors++
			r.log.Warn("stat failed", "path", p, "err", err)
			continue
		}
		if err := r.add(ctx, root, dir, p, fi); err != nil {
			return err
		}
	}

	for _, sub := range subdirs {
		if err := r.walkDir(ctx, root, sub, checkpoint); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) add(ctx context.Context, root, dir, p string, fi fs.FileInfo) error {
	rec, ok := r.record(root, dir, p, fi)
	if !ok {
		return nil
	}
	r.batch = append(r.batch, rec)
	if len(r.batch) >= r.opts.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

func (r *run) record(root, dir, p string, fi fs.FileInfo) (model.FileRecord, bool) {
	mtime := fi.ModTime().Unix()
	if mtime < 0 {
		r.log.Warn("negative modification time", "path", p)
		r.report.Errors++
		return model.FileRecord{}, false
	}
	if !r.opts.Force && r.cutoff > 0 && mtime < r.cutoff {
		r.report.Skipped++
		return model.FileRecord{}, false
	}

	parent := dir
	if dir == root {
		parent = ""
	}
	rec := model.FileRecord{
		ID:           p,
		Name:         fi.Name(),
		Path:         p,
		Source:       model.SourceLocal,
		ModifiedTime: mtime,
		CreatedTime:  EffectiveCreatedTime(p, statCtime(fi), mtime),
		ParentID:     parent,
	}
	if fi.IsDir() {
		rec.MimeType = model.MimeFolder
	} else {
		rec.MimeType = mimeByName(fi.Name())
		rec.Size = fi.Size()
	}
	return rec, true
}

func (r *run) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	if r.cancelled(ctx) {
		return ErrCancelled
	}
	r.s.setState(Flushing)
	defer r.s.setState(Walking)

	err := sqlite.RetryBusy(ctx, r.s.attempts, r.s.delay, func() error {
		_, err := r.s.cat.UpsertBatch(ctx, r.batch, store.UpsertOptions{Source: model.SourceLocal})
		if sqlite.IsBusy(err) {
			r.log.Warn("catalog busy, retrying batch", "size", len(r.batch))
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("flush batch of %d: %w", len(r.batch), err)
	}
	r.report.Processed += len(r.batch)
	r.report.Flushed++
	r.batch = r.batch[:0]
	// everything walked before r.walking is now committed
	if r.walking != "" {
		if err := r.s.state.SaveCheckpoint(r.walking); err != nil {
			r.log.Warn("save checkpoint", "dir", r.walking, "err", err)
		}
	}
	r.opts.Progress.Report(r.report.Processed, r.report.Total,
		fmt.Sprintf("processed %s items", humanize.Comma(int64(r.report.Processed))))
	return nil
}

func mimeByName(name string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if t == "" {
		return "file"
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// walkOrderBefore reports whether directory a is visited before b by a
// depth-first walk that lists entries in name order.
func walkOrderBefore(a, b string) bool {
	as := strings.Split(filepath.Clean(a), string(filepath.Separator))
	bs := strings.Split(filepath.Clean(b), string(filepath.Separator))
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
