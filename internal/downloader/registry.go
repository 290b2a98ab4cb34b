package downloader

import (
	"fmt"
	"sync"

	"github.com/Another0Noob/vault-downloader/internal/config"
)

// Registry tracks one Downloader per download directory for callers that
// orchestrate several folder runs. It replaces any notion of a process-wide
// instance cache: create a Registry at orchestration start, pass it around,
// drop it at shutdown.
type Registry struct {
	mu     sync.Mutex
	byRoot map[string]*Downloader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byRoot: make(map[string]*Downloader)}
}

// Get returns the downloader registered for root, if any.
func (r *Registry) Get(root string) (*Downloader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byRoot[root]
	return d, ok
}

// GetOrCreate returns the downloader for root, constructing and registering
// it on first use.
func (r *Registry) GetOrCreate(root, system string, cfg config.Config, opts Options) (*Downloader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byRoot[root]; ok {
		return d, nil
	}
	d, err := New(root, system, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("downloader for %s: %w", root, err)
	}
	r.byRoot[root] = d
	return d, nil
}

// Roots lists the registered download directories.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.byRoot))
	for root := range r.byRoot {
		roots = append(roots, root)
	}
	return roots
}
