package scope

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrDuplicateScope is returned by Project.Add when the scope name is taken.
var ErrDuplicateScope = errors.New("scope already in project")

// Project is a set of scopes.
type Project struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
}

// NewProject returns a project holding scopes. Later scopes with a duplicate
// name are rejected.
func NewProject(scopes ...*Scope) (*Project, error) {
	p := &Project{scopes: make(map[string]*Scope)}
	for _, s := range scopes {
		if err := p.Add(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add adds s to the project.
func (p *Project) Add(s *Scope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.scopes[s.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateScope, s.Name)
	}
	p.scopes[s.Name] = s
	return nil
}

// Scope returns the named scope.
func (p *Project) Scope(name string) (*Scope, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.scopes[name]
	return s, ok
}

// Scopes returns every scope ordered by name.
func (p *Project) Scopes() []*Scope {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Scope, 0, len(p.scopes))
	for _, name := range slices.Sorted(maps.Keys(p.scopes)) {
		out = append(out, p.scopes[name])
	}
	return out
}

// RunRequest offers req to every scope in name order and returns how many ran
// it. It stops at the first failing run.
func (p *Project) RunRequest(ctx context.Context, req RunRequest) (int, error) {
	total := 0
	for _, s := range p.Scopes() {
		n, err := s.RunRequest(ctx, req)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
