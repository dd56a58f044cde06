package program

import (
	"sort"
	"sync"
)

// Registry maps program names to loaded programs.
type Registry struct {
	mu    sync.RWMutex
	progs map[string]Program
}

func NewRegistry() *Registry {
	return &Registry{progs: make(map[string]Program)}
}

func (r *Registry) Register(p Program) {
	r.mu.Lock()
	r.progs[p.Name()] = p
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Program, bool) {
	r.mu.RLock()
	p, ok := r.progs[name]
	r.mu.RUnlock()
	return p, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.progs))
	for name := range r.progs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
