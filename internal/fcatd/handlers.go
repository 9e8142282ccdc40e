package fcatd

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"filecatalog/internal/app"
	"filecatalog/internal/core/scan"
	"filecatalog/internal/core/search"
	"filecatalog/internal/core/walk"
	"filecatalog/internal/core/watch"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

var ErrScanRunning = errors.New("scan already running")

type Handlers struct {
	env *app.Env
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	scannerOnce sync.Once
	scanner     *scan.Scanner
	scannerErr  error

	mu        sync.Mutex
	scanning  bool
	stopScan  context.CancelFunc
	lastScan  *scan.Report
	lastError string
	watcher   *watch.Watcher
}

func NewHandlers(env *app.Env) *Handlers {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handlers{
		env:    env,
		log:    env.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops a running scan and watcher and waits for them.
func (h *Handlers) Close() error {
	if h == nil {
		return nil
	}
	h.cancel()
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
	h.wg.Wait()
	return nil
}

func (h *Handlers) getScanner() (*scan.Scanner, error) {
	h.scannerOnce.Do(func() {
		h.scanner, h.scannerErr = h.env.NewScanner()
	})
	return h.scanner, h.scannerErr
}

func (h *Handlers) request(p SearchParams) search.Request {
	req := search.Request{
		Source:        p.Source,
		Page:          p.Page,
		PageSize:      p.PageSize,
		SearchTerm:    p.Q,
		Sort:          store.SortKey(p.Sort),
		TypeFilter:    p.Type,
		FolderID:      p.FolderID,
		RestrictLocal: p.LocalOnly,
		Advanced: search.Advanced{
			Starred:        p.Starred,
			CreatedAfter:   p.CreatedAfter,
			CreatedBefore:  p.CreatedBefore,
			ModifiedAfter:  p.ModifiedAfter,
			ModifiedBefore: p.ModifiedBefore,
			SizeMinMB:      p.SizeMinMB,
			SizeMaxMB:      p.SizeMaxMB,
			Extensions:     p.Extensions,
			MimeType:       p.MimeType,
		},
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = h.env.Config.Search.PageSize
	}
	return req
}

func (h *Handlers) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	req := h.request(p)
	total, err := h.env.Search.Count(ctx, req)
	if err != nil {
		return SearchResult{}, err
	}
	items, err := h.env.Search.LoadPage(ctx, req)
	if err != nil {
		return SearchResult{}, err
	}
	if items == nil {
		items = []model.FileRecord{}
	}
	return SearchResult{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    (total + req.PageSize - 1) / req.PageSize,
	}, nil
}

func (h *Handlers) Count(ctx context.Context, p SearchParams) (int, error) {
	return h.env.Search.Count(ctx, h.request(p))
}

func (h *Handlers) Get(ctx context.Context, p IDParams) (model.FileRecord, error) {
	return h.env.Store.Get(ctx, p.ID)
}

func (h *Handlers) Breadcrumb(ctx context.Context, p IDParams) ([]model.FileRecord, error) {
	chain, err := h.env.Store.Breadcrumb(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		chain = []model.FileRecord{}
	}
	return chain, nil
}

func (h *Handlers) SetStarred(ctx context.Context, p StarParams) (bool, error) {
	if err := h.env.Store.SetStarred(ctx, p.ID, p.Starred); err != nil {
		return false, err
	}
	return p.Starred, nil
}

func (h *Handlers) ToggleStarred(ctx context.Context, p IDParams) (bool, error) {
	return h.env.Store.ToggleStarred(ctx, p.ID)
}

func (h *Handlers) SetThumbnail(ctx context.Context, p ThumbnailParams) error {
	return h.env.Store.UpdateThumbnailPath(ctx, p.ID, p.Path)
}

func (h *Handlers) UpdateMetadata(ctx context.Context, p MetadataParams) error {
	return h.env.Store.UpdateMetadata(ctx, p.ID, store.Metadata{
		Description:   p.Description,
		WebLink:       p.WebLink,
		ThumbnailLink: p.ThumbnailLink,
	})
}

func (h *Handlers) Stats(ctx context.Context) (StatsResult, error) {
	st, err := h.env.Store.Stats(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{
		Total:    st.Total,
		BySource: st.BySource,
		Starred:  st.Starred,
		Version:  st.Version,
		Backend:  h.env.Text.Name(),
	}, nil
}

// ScanStart runs a full scan in the background. Only one scan runs at a time.
func (h *Handlers) ScanStart(p ScanStartParams) (ScanStatusResult, error) {
	sc, err := h.getScanner()
	if err != nil {
		return ScanStatusResult{}, err
	}
	opts := h.env.ScanOptions(p.Roots, p.Force)
	if len(opts.Roots) == 0 {
		return ScanStatusResult{}, scan.ErrNoRoots
	}

	h.mu.Lock()
	if h.scanning {
		h.mu.Unlock()
		return ScanStatusResult{}, ErrScanRunning
	}
	ctx, cancel := context.WithCancel(h.ctx)
	h.scanning = true
	h.stopScan = cancel
	h.lastError = ""
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		rep, err := sc.Run(ctx, opts)

		h.mu.Lock()
		h.scanning = false
		h.stopScan = nil
		h.lastScan = &rep
		if err != nil {
			h.lastError = err.Error()
		}
		h.mu.Unlock()
		if err != nil {
			h.log.Warn("background scan ended with error", "err", err)
		}
	}()
	return h.ScanStatus(), nil
}

func (h *Handlers) ScanStop() ScanStatusResult {
	h.mu.Lock()
	stop := h.stopScan
	h.mu.Unlock()
	if stop != nil {
		if sc, err := h.getScanner(); err == nil {
			sc.Stop()
		}
		stop()
	}
	return h.ScanStatus()
}

func (h *Handlers) ScanStatus() ScanStatusResult {
	res := ScanStatusResult{State: scan.Idle.String()}
	if sc, err := h.getScanner(); err == nil {
		res.State = sc.State().String()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	res.Running = h.scanning
	res.Error = h.lastError
	if h.lastScan != nil {
		last := *h.lastScan
		res.Last = &last
	}
	return res
}

// WatchStart watches the configured roots and rescans changed paths.
func (h *Handlers) WatchStart(p WatchStartParams) (WatchStatusResult, error) {
	sc, err := h.getScanner()
	if err != nil {
		return WatchStatusResult{}, err
	}
	opts := h.env.ScanOptions(nil, false)
	if len(opts.Roots) == 0 {
		return WatchStatusResult{}, scan.ErrNoRoots
	}

	h.mu.Lock()
	if h.watcher != nil {
		h.mu.Unlock()
		return h.WatchStatus(), nil
	}
	h.mu.Unlock()

	debounce := h.env.Config.Scan.DebounceDuration
	if p.DebounceMS > 0 {
		debounce = time.Duration(p.DebounceMS) * time.Millisecond
	}
	w, err := watch.NewWatcher(opts.Roots, watch.Options{
		Debounce: debounce,
		Filter: walk.Options{
			RespectIgnore: opts.RespectIgnore,
			SkipHidden:    opts.SkipHidden,
			ExcludeGlobs:  opts.Exclude,
		},
		Ignore: h.env.IgnorePaths(),
		OnChange: func(paths []string) {
			rep, err := sc.ScanPaths(h.ctx, opts, paths)
			if err != nil {
				h.log.Warn("rescan failed", "paths", len(paths), "err", err)
				return
			}
			h.log.Info("rescanned changed paths", "paths", len(paths), "processed", rep.Processed, "deleted", rep.Deleted)
		},
		Logger: h.log,
	})
	if err != nil {
		return WatchStatusResult{}, err
	}

	h.mu.Lock()
	if h.watcher != nil {
		h.mu.Unlock()
		_ = w.Close()
		return h.WatchStatus(), nil
	}
	h.watcher = w
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := w.Run(h.ctx); err != nil {
			h.log.Error("watcher stopped", "err", err)
		}
		h.mu.Lock()
		if h.watcher == w {
			h.watcher = nil
		}
		h.mu.Unlock()
		_ = w.Close()
	}()

	if p.SyncOnStart {
		if _, err := h.ScanStart(ScanStartParams{}); err != nil && !errors.Is(err, ErrScanRunning) {
			return h.WatchStatus(), err
		}
	}
	return h.WatchStatus(), nil
}

func (h *Handlers) WatchStop() WatchStatusResult {
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
	return h.WatchStatus()
}

func (h *Handlers) WatchStatus() WatchStatusResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher == nil {
		return WatchStatusResult{}
	}
	return WatchStatusResult{Running: true, Roots: h.watcher.Roots()}
}
