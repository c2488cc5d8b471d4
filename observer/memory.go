package observer

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryRunStore is an in-process RunStore. Use for tests and single-process use.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemoryRunStore returns an empty store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]Run)}
}

// Save implements RunStore.
func (s *MemoryRunStore) Save(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

// List implements RunStore.
func (s *MemoryRunStore) List(ctx context.Context, scope, pipeline string, limit int) ([]Run, error) {
	s.mu.RLock()
	var out []Run
	for _, r := range s.runs {
		if r.Scope == scope && r.Pipeline == pipeline {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, newestFirst)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Latest implements RunStore.
func (s *MemoryRunStore) Latest(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	latest := make(map[[2]string]Run)
	for _, r := range s.runs {
		key := [2]string{r.Scope, r.Pipeline}
		if cur, ok := latest[key]; !ok || newestFirst(r, cur) < 0 {
			latest[key] = r
		}
	}
	s.mu.RUnlock()
	out := make([]Run, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Run) int {
		return cmp.Or(cmp.Compare(a.Scope, b.Scope), cmp.Compare(a.Pipeline, b.Pipeline))
	})
	return out, nil
}

func newestFirst(a, b Run) int {
	return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(b.RunID, a.RunID))
}

var _ RunStore = (*MemoryRunStore)(nil)
