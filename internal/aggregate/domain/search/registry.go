// Package search compiles discovery queries into an Elasticsearch-style DSL
// and evaluates that DSL against cached aggregate records.
package search

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds the dotted paths that need nested-document semantics
type Registry struct {
	mu    sync.RWMutex
	paths map[string]struct{}
}

// NewRegistry creates a registry holding paths
func NewRegistry(paths ...string) *Registry {
	r := &Registry{paths: make(map[string]struct{})}
	for _, p := range paths {
		r.Register(p)
	}
	return r
}

// Register adds a nested path. Empty paths are ignored.
func (r *Registry) Register(path string) {
	path = strings.Trim(path, ".")
	if path == "" {
		return
	}
	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()
}

// Paths returns the registered paths in lexical order
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Levels returns every registered path that is a proper prefix of path,
// outermost first.
func (r *Registry) Levels(path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var levels []string
	for i := 0; i < len(path); i++ {
		if path[i] != '.' {
			continue
		}
		if _, ok := r.paths[path[:i]]; ok {
			levels = append(levels, path[:i])
		}
	}
	return levels
}

// NestedPrefix returns the innermost registered prefix of path
func (r *Registry) NestedPrefix(path string) (string, bool) {
	levels := r.Levels(path)
	if len(levels) == 0 {
		return "", false
	}
	return levels[len(levels)-1], true
}

// commonLevels returns the levels shared by every path
func (r *Registry) commonLevels(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	levels := r.Levels(paths[0])
	for _, p := range paths[1:] {
		other := r.Levels(p)
		n := 0
		for n < len(levels) && n < len(other) && levels[n] == other[n] {
			n++
		}
		levels = levels[:n]
	}
	return levels
}
