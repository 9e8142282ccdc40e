package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"filecatalog/internal/core/explain"
	"filecatalog/internal/index/filter"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
)

const DefaultBatchSize = 1000

type Policy string

const (
	// PolicyBest merges into the most recently modified candidate.
	PolicyBest Policy = "best"
	// PolicyAll merges into every candidate of the winning phase.
	PolicyAll Policy = "all"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyBest, nil
	case PolicyBest, PolicyAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fusion policy %q (want best or all)", s)
	}
}

type EventKind string

const (
	EventNoMatch   EventKind = "no_match"
	EventAmbiguous EventKind = "ambiguous"
	EventConflict  EventKind = "conflict"
)

// Event is a non-fatal fusion outcome worth surfacing to an operator.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	RemoteID   string    `json:"remote_id"`
	RemoteName string    `json:"remote_name"`
	Phase      Phase     `json:"phase,omitempty"`
	LocalIDs   []string  `json:"local_ids,omitempty"`
	Existing   string    `json:"existing,omitempty"`
	Incoming   string    `json:"incoming,omitempty"`
}

type EventSink func(Event)

type Stats struct {
	Attempted int `json:"attempted"`
	Eligible  int `json:"eligible"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	Conflicts int `json:"conflicts"`
	Fused     int `json:"fused"`
	Unmatched int `json:"unmatched"`
	Deleted   int `json:"deleted"`
}

func (s *Stats) Add(o Stats) {
	s.Attempted += o.Attempted
	s.Eligible += o.Eligible
	s.Matched += o.Matched
	s.Ambiguous += o.Ambiguous
	s.Conflicts += o.Conflicts
	s.Fused += o.Fused
	s.Unmatched += o.Unmatched
	s.Deleted += o.Deleted
}

// Store is what fusion reads and writes.
type Store interface {
	store.LocalIndex
	FetchAll(ctx context.Context, f filter.Expr, sort store.SortKey) ([]model.FileRecord, error)
	UpdateMetadata(ctx context.Context, id string, md store.Metadata) error
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

type Config struct {
	Policy  Policy
	Logger  *slog.Logger
	Events  EventSink
	Explain explain.Explain
}

type Engine struct {
	st      Store
	matcher *Matcher
	policy  Policy
	log     *slog.Logger
	events  EventSink
}

func NewEngine(st Store, cfg Config) *Engine {
	e := &Engine{
		st:      st,
		matcher: NewMatcher(st),
		policy:  cfg.Policy,
		log:     cfg.Logger,
		events:  cfg.Events,
	}
	if cfg.Explain != nil {
		e.matcher = e.matcher.WithExplain(cfg.Explain)
	}
	if e.policy == "" {
		e.policy = PolicyBest
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

func (e *Engine) Matcher() *Matcher { return e.matcher }

// Fuse merges each eligible remote record into its local match and then
// deletes the merged remote rows. Records that are not remote, have no
// size, or carry no metadata are counted but left alone. Rows merged before
// an error are still deleted.
func (e *Engine) Fuse(ctx context.Context, remotes []model.FileRecord) (Stats, error) {
	var (
		st     Stats
		merged []string
		seen   = map[string]bool{}
	)
	finish := func(err error) (Stats, error) {
		if len(merged) > 0 {
			n, derr := e.st.DeleteByIDs(ctx, merged)
			st.Deleted += n
			if derr != nil && err == nil {
				err = fmt.Errorf("delete fused remote rows: %w", derr)
			}
		}
		return st, err
	}

	for _, r := range remotes {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		st.Attempted++
		if r.Source != model.SourceRemote || r.Size <= 0 || !r.HasFusableMetadata() || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		st.Eligible++

		m, err := e.matcher.Match(ctx, r)
		if err != nil {
			return finish(fmt.Errorf("match %s: %w", r.ID, err))
		}
		if len(m.Candidates) == 0 {
			st.Unmatched++
			e.emit(Event{Kind: EventNoMatch, RemoteID: r.ID, RemoteName: r.Name})
			continue
		}

		targets := m.Candidates
		if len(targets) > 1 {
			st.Ambiguous++
			e.emit(Event{Kind: EventAmbiguous, RemoteID: r.ID, RemoteName: r.Name, Phase: m.Phase, LocalIDs: m.IDs()})
			if e.policy == PolicyBest {
				targets = targets[:1]
			}
		}

		fused := 0
		for _, local := range targets {
			conflict, err := e.merge(ctx, r, local, m.Phase)
			if errors.Is(err, store.ErrNotFound) {
				e.log.Warn("fusion target vanished", "local_id", local.ID, "remote_id", r.ID)
				continue
			}
			if err != nil {
				return finish(fmt.Errorf("merge %s into %s: %w", r.ID, local.ID, err))
			}
			if conflict {
				st.Conflicts++
			}
			fused++
		}
		// the remote row is only dropped once its metadata landed somewhere
		if fused == 0 {
			st.Unmatched++
			e.emit(Event{Kind: EventNoMatch, RemoteID: r.ID, RemoteName: r.Name, Phase: m.Phase})
			continue
		}
		st.Fused += fused
		st.Matched++
		merged = append(merged, r.ID)
	}
	return finish(nil)
}

// merge writes remote's metadata into local. It never replaces a description
// with an empty one and never blanks a link.
func (e *Engine) merge(ctx context.Context, remote, local model.FileRecord, phase Phase) (bool, error) {
	incoming := strings.TrimSpace(remote.Description)
	existing := strings.TrimSpace(local.Description)

	conflict := incoming != "" && existing != "" && incoming != existing
	if conflict {
		e.emit(Event{
			Kind:       EventConflict,
			RemoteID:   remote.ID,
			RemoteName: remote.Name,
			Phase:      phase,
			LocalIDs:   []string{local.ID},
			Existing:   local.Description,
			Incoming:   remote.Description,
		})
	}

	md := store.Metadata{Description: local.Description}
	if incoming != "" {
		md.Description = remote.Description
	}
	if remote.WebLink != "" {
		md.WebLink = &remote.WebLink
	}
	if remote.ThumbnailLink != "" {
		md.ThumbnailLink = &remote.ThumbnailLink
	}
	return conflict, e.st.UpdateMetadata(ctx, local.ID, md)
}

func (e *Engine) emit(ev Event) {
	ev.ID = uuid.NewString()
	attrs := []any{"event_id", ev.ID, "remote_id", ev.RemoteID, "remote_name", ev.RemoteName}
	switch ev.Kind {
	case EventNoMatch:
		e.log.Debug("fusion: no local match", attrs...)
	case EventAmbiguous:
		e.log.Warn("fusion: ambiguous match", append(attrs, "phase", ev.Phase, "candidates", len(ev.LocalIDs), "policy", e.policy)...)
	case EventConflict:
		e.log.Warn("fusion: description conflict", append(attrs, "local_id", ev.LocalIDs)...)
	}
	if e.events != nil {
		e.events(ev)
	}
}

type FuseAllOptions struct {
	BatchSize int
	Progress  model.ProgressFunc
}

// FuseAll fuses every remote row already in the catalog, BatchSize rows per
// Fuse call.
func (e *Engine) FuseAll(ctx context.Context, opts FuseAllOptions) (Stats, error) {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	remotes, err := e.st.FetchAll(ctx, remoteRows(), store.SortNameAsc)
	if err != nil {
		return Stats{}, err
	}
	total := len(remotes)
	e.log.Info("fusing stored remote rows", "total", total, "policy", e.policy)

	var st Stats
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		batch, err := e.Fuse(ctx, remotes[start:end])
		st.Add(batch)
		if err != nil {
			return st, err
		}
		opts.Progress.Report(end, total, fmt.Sprintf("fused %s of %s remote rows",
			humanize.Comma(int64(end)), humanize.Comma(int64(total))))
	}
	e.log.Info("fusion finished",
		"eligible", st.Eligible,
		"matched", st.Matched,
		"ambiguous", st.Ambiguous,
		"conflicts", st.Conflicts,
		"deleted", st.Deleted,
	)
	return st, nil
}

func remoteRows() filter.Expr {
	return filter.OneOf{Field: filter.FieldSource, Values: []any{string(model.SourceRemote), "drive"}}
}
