package tools

import (
	"sort"
	"sync"

	"github.com/diffsight/diffsight-go/internal/models"
)

// Registry holds the configured adapters and answers selection queries.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	disabled map[string]bool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		disabled: make(map[string]bool),
	}
}

// Register adds an adapter, replacing any previous adapter with the same name
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Disable excludes a tool from selection without unregistering it
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = true
}

// Enable re-includes a previously disabled tool
func (r *Registry) Enable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, name)
}

// Get returns an adapter by name
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Select returns enabled adapters filtered by requested categories and an
// optional explicit name list (the union requested by specialized agents).
// Results are sorted by name so downstream iteration is stable.
func (r *Registry) Select(categories []models.Category, names []string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wantCategory := make(map[models.Category]bool, len(categories))
	for _, c := range categories {
		wantCategory[c] = true
	}
	wantName := make(map[string]bool, len(names))
	for _, n := range names {
		wantName[n] = true
	}

	var selected []Adapter
	for name, a := range r.adapters {
		if r.disabled[name] {
			continue
		}
		if len(wantName) > 0 && !wantName[name] {
			continue
		}
		if len(wantCategory) > 0 && !reportsAny(a, wantCategory) {
			continue
		}
		selected = append(selected, a)
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Name() < selected[j].Name()
	})
	return selected
}

// Names lists all registered tool names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func reportsAny(a Adapter, want map[models.Category]bool) bool {
	for _, c := range a.Categories() {
		if want[c] {
			return true
		}
	}
	return false
}
