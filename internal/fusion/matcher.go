// Package fusion pairs remote records with the local files they describe
// and merges the remote metadata into them.
package fusion

import (
	"context"
	"strings"

	"filecatalog/internal/core/explain"
	"filecatalog/internal/index/store"
	"filecatalog/internal/model"
	"filecatalog/internal/normalize"
)

type Phase string

const (
	PhaseNone       Phase = ""
	PhaseExact      Phase = "exact"
	PhaseNormalized Phase = "normalized"
	PhaseAggressive Phase = "aggressive"
	PhasePrefix     Phase = "prefix"
)

// Match is the outcome of one lookup. Candidates all come from Phase and
// are ordered most recently modified first, then by id.
type Match struct {
	Phase      Phase
	Candidates []model.FileRecord
}

func (m Match) IDs() []string {
	out := make([]string, 0, len(m.Candidates))
	for _, r := range m.Candidates {
		out = append(out, r.ID)
	}
	return out
}

// Matcher resolves a remote record against local rows through the store's
// indexed name projections.
type Matcher struct {
	idx store.LocalIndex
	ex  explain.Explain
}

func NewMatcher(idx store.LocalIndex) *Matcher {
	return &Matcher{idx: idx}
}

// WithExplain returns a copy that reports every evaluated phase to ex.
func (m *Matcher) WithExplain(ex explain.Explain) *Matcher {
	cp := *m
	cp.ex = ex
	return &cp
}

// Match tries each phase in order and stops at the first one with any
// candidate. Size never takes part in matching.
func (m *Matcher) Match(ctx context.Context, remote model.FileRecord) (Match, error) {
	name := strings.TrimSpace(remote.Name)
	if name == "" {
		return Match{}, nil
	}
	aggressive := normalize.Aggressive(name)

	phases := []struct {
		phase  Phase
		key    string
		lookup func(context.Context, string) ([]model.FileRecord, error)
	}{
		{PhaseExact, name, m.idx.FindLocalByName},
		{PhaseNormalized, normalize.Normalize(name), m.idx.FindLocalByNormalized},
		{PhaseAggressive, aggressive, m.idx.FindLocalByAggressive},
		{PhasePrefix, aggressive, m.idx.FindLocalByAggressivePrefix},
	}
	for _, p := range phases {
		if p.key == "" {
			continue
		}
		stop := m.timer("match_" + string(p.phase))
		found, err := p.lookup(ctx, p.key)
		stop()
		if err != nil {
			return Match{}, err
		}
		if len(found) > 0 {
			m.kv("match_phase", string(p.phase))
			m.kv("match_candidates", len(found))
			return Match{Phase: p.phase, Candidates: found}, nil
		}
	}
	m.kv("match_phase", "none")
	return Match{}, nil
}

// FindMatches returns the ids of the local records matching remote.
func (m *Matcher) FindMatches(ctx context.Context, remote model.FileRecord) ([]string, Phase, error) {
	res, err := m.Match(ctx, remote)
	if err != nil {
		return nil, PhaseNone, err
	}
	return res.IDs(), res.Phase, nil
}

func (m *Matcher) timer(name string) func() {
	if m.ex == nil {
		return func() {}
	}
	return m.ex.Timer(name)
}

func (m *Matcher) kv(key string, value any) {
	if m.ex != nil {
		m.ex.KV(key, value)
	}
}
