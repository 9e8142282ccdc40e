package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"filecatalog/internal/core/scan"
	"filecatalog/internal/index/sqlite"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

const (
	DefaultPageSize  = 1000
	DefaultBatchSize = 500
)

var ErrTooManyErrors = errors.New("too many consecutive remote errors")

// Guards bound the listing loop against a misbehaving remote.
type Guards struct {
	MaxPages             int
	MaxEmptyPages        int
	MaxSameToken         int
	MaxConsecutiveErrors int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
}

var DefaultGuards = Guards{
	MaxPages:             300,
	MaxEmptyPages:        3,
	MaxSameToken:         5,
	MaxConsecutiveErrors: 10,
	BackoffBase:          time.Second,
	BackoffMax:           10 * time.Second,
}

func (g Guards) withDefaults() Guards {
	if g.MaxPages <= 0 {
		g.MaxPages = DefaultGuards.MaxPages
	}
	if g.MaxEmptyPages <= 0 {
		g.MaxEmptyPages = DefaultGuards.MaxEmptyPages
	}
	if g.MaxSameToken <= 0 {
		g.MaxSameToken = DefaultGuards.MaxSameToken
	}
	if g.MaxConsecutiveErrors <= 0 {
		g.MaxConsecutiveErrors = DefaultGuards.MaxConsecutiveErrors
	}
	if g.BackoffBase <= 0 {
		g.BackoffBase = DefaultGuards.BackoffBase
	}
	if g.BackoffMax < g.BackoffBase {
		g.BackoffMax = max(DefaultGuards.BackoffMax, g.BackoffBase)
	}
	return g
}

// Backoff is the wait after the n-th consecutive error.
func (g Guards) Backoff(n int) time.Duration {
	d := g.BackoffBase
	for i := 1; i < n && d < g.BackoffMax; i++ {
		d *= 2
	}
	return min(d, g.BackoffMax)
}

type StopReason string

const (
	StopEnd        StopReason = "end"
	StopMaxPages   StopReason = "max_pages"
	StopEmptyPages StopReason = "empty_pages"
	StopSameToken  StopReason = "same_token"
	StopErrors     StopReason = "errors"
	StopCancelled  StopReason = "cancelled"
)

// Catalog is the part of the store the ingester writes through.
type Catalog interface {
	UpsertBatch(ctx context.Context, records []model.FileRecord, opts store.UpsertOptions) (store.UpsertResult, error)
}

type Config struct {
	StateDir      string
	Logger        *slog.Logger
	Guards        Guards
	RetryAttempts int
	RetryDelay    time.Duration
	Now           func() time.Time
	// Sleep waits between failed requests; it returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
}

type Options struct {
	Force     bool
	FolderIDs []string
	PageSize  int
	BatchSize int
	Progress  model.ProgressFunc
	// OnBatch runs after each flushed batch, e.g. to fuse it right away.
	OnBatch func(ctx context.Context, records []model.FileRecord) error
}

type Report struct {
	RunID      string             `json:"run_id"`
	Pages      int                `json:"pages"`
	Items      int                `json:"items"`
	Filtered   int                `json:"filtered"`
	Flushed    int                `json:"flushed"`
	StopReason StopReason         `json:"stop_reason"`
	Duration   time.Duration      `json:"duration"`
	Records    []model.FileRecord `json:"-"`
}

type Ingester struct {
	lister Lister
	cat    Catalog
	state  scan.StateDir
	log    *slog.Logger
	guards Guards

	attempts int
	delay    time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(l Lister, cat Catalog, cfg Config) *Ingester {
	g := &Ingester{
		lister:   l,
		cat:      cat,
		state:    scan.StateDir(cfg.StateDir),
		log:      cfg.Logger,
		guards:   cfg.Guards.withDefaults(),
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		now:      cfg.Now,
		sleep:    cfg.Sleep,
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.attempts <= 0 {
		g.attempts = scan.DefaultRetryAttempts
	}
	if g.delay <= 0 {
		g.delay = scan.DefaultRetryDelay
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.sleep == nil {
		g.sleep = sleepCtx
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run pages through the listing and upserts every item as a remote row.
// Batches committed before an error or cancellation stay in the catalog.
// The last-sync time is only recorded when the listing reached its end.
func (g *Ingester) Run(ctx context.Context, opts Options) (Report, error) {
	if g == nil || g.lister == nil || g.cat == nil {
		return Report{}, fmt.Errorf("ingester is not initialized")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	start := g.now()
	rep := Report{RunID: uuid.NewString()}
	log := g.log.With("run_id", rep.RunID)

	var modifiedAfter time.Time
	if !opts.Force {
		last, ok, err := g.state.LastSync(scan.RemoteSyncFile)
		if err != nil {
			log.Warn("ignoring unreadable last sync time", "err", err)
		} else if ok {
			modifiedAfter = last
		}
	}

	scope, err := g.folderScope(ctx, opts.FolderIDs)
	if err != nil {
		rep.StopReason = StopCancelled
		return rep, err
	}
	log.Info("remote sync started", "force", opts.Force, "folders", len(opts.FolderIDs), "scope", len(scope))

	var batch []model.FileRecord
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := sqlite.RetryBusy(ctx, g.attempts, g.delay, func() error {
			_, err := g.cat.UpsertBatch(ctx, batch, store.UpsertOptions{Source: model.SourceRemote})
			if sqlite.IsBusy(err) {
				log.Warn("catalog busy, retrying batch", "size", len(batch))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("flush batch of %d: %w", len(batch), err)
		}
		rep.Flushed++
		rep.Records = append(rep.Records, batch...)
		if opts.OnBatch != nil {
			if err := opts.OnBatch(ctx, batch); err != nil {
				return err
			}
		}
		batch = nil
		return nil
	}

	var (
		token, lastToken string
		attempts         int
		emptyPages       int
		sameToken        int
		consecutiveErrs  int
		retrying         bool
	)
	for {
		if err := ctx.Err(); err != nil {
			rep.StopReason = StopCancelled
			break
		}
		if attempts >= g.guards.MaxPages {
			rep.StopReason = StopMaxPages
			log.Warn("page limit reached", "pages", attempts)
			break
		}
		// a retried request reuses its token; only tokens handed back by
		// successful pages count toward the repeat guard
		if retrying {
			retrying = false
		} else if token != "" && token == lastToken {
			sameToken++
			log.Warn("remote repeated page token", "count", sameToken)
			if sameToken >= g.guards.MaxSameToken {
				rep.StopReason = StopSameToken
				break
			}
		} else {
			sameToken = 0
		}
		lastToken = token
		attempts++

		page, err := g.lister.List(ctx, PageRequest{Token: token, PageSize: pageSize, ModifiedAfter: modifiedAfter})
		if err != nil {
			if ctx.Err() != nil {
				rep.StopReason = StopCancelled
				break
			}
			consecutiveErrs++
			log.Error("remote listing failed", "page", attempts, "attempt", consecutiveErrs, "err", err)
			if consecutiveErrs >= g.guards.MaxConsecutiveErrors {
				rep.StopReason = StopErrors
				if ferr := flush(); ferr != nil {
					log.Error("flush after listing errors", "err", ferr)
				}
				rep.Duration = g.now().Sub(start)
				return rep, fmt.Errorf("%w: %v", ErrTooManyErrors, err)
			}
			if err := g.sleep(ctx, g.guards.Backoff(consecutiveErrs)); err != nil {
				rep.StopReason = StopCancelled
				break
			}
			retrying = true
			continue
		}
		consecutiveErrs = 0
		rep.Pages++

		if len(page.Items) == 0 {
			emptyPages++
			log.Info("empty remote page", "count", emptyPages)
			if emptyPages >= g.guards.MaxEmptyPages {
				rep.StopReason = StopEmptyPages
				break
			}
		} else {
			emptyPages = 0
		}

		for _, it := range page.Items {
			if it.ID == "" {
				continue
			}
			if scope != nil && !scope[it.ParentID()] {
				rep.Filtered++
				continue
			}
			batch = append(batch, it.Record())
			rep.Items++
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					rep.Duration = g.now().Sub(start)
					return rep, err
				}
			}
		}
		opts.Progress.Report(rep.Items, 0, fmt.Sprintf("fetched %s remote items", humanize.Comma(int64(rep.Items))))

		if page.NextToken == "" {
			rep.StopReason = StopEnd
			break
		}
		token = page.NextToken
	}

	if rep.StopReason != StopCancelled {
		if err := flush(); err != nil {
			rep.Duration = g.now().Sub(start)
			return rep, err
		}
	}
	rep.Duration = g.now().Sub(start)
	if rep.StopReason == StopCancelled {
		log.Info("remote sync cancelled", "items", rep.Items)
		return rep, ctx.Err()
	}
	if rep.StopReason == StopEnd {
		if err := g.state.SaveLastSync(scan.RemoteSyncFile, start); err != nil {
			log.Warn("save last sync time", "err", err)
		}
	}
	opts.Progress.Report(rep.Items, rep.Items, "done")
	log.Info("remote sync finished",
		"pages", rep.Pages,
		"items", rep.Items,
		"filtered", rep.Filtered,
		"stop", rep.StopReason,
		"duration", rep.Duration,
	)
	return rep, nil
}
