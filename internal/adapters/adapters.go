// Package adapters provides a stateless, name-keyed registry for
// site-specific header tweaks. Adapter bodies (Supabase, GitHub, Gmail,
// …) are out of core scope; only the interface and registry are part of
// the core.
package adapters

import (
	"fmt"
	"sort"
	"strings"
)

// HeaderAdapter rewrites a capture's retained headers before they are
// persisted, for sites that need domain-specific tweaks. Replay does not
// apply adapters.
type HeaderAdapter interface {
	Name() string
	RewriteHeaders(headers map[string]string) map[string]string
}

// Registry resolves HeaderAdapters by name.
type Registry struct {
	adapters map[string]HeaderAdapter
}

// NewRegistry builds an empty registry; callers register adapters with
// Register.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]HeaderAdapter)}
}

// Register adds an adapter under its own name, overwriting any existing
// adapter with the same name.
func (r *Registry) Register(a HeaderAdapter) {
	r.adapters[strings.ToLower(a.Name())] = a
}

// Get resolves an adapter by name (case-insensitive).
func (r *Registry) Get(name string) (HeaderAdapter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	a, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("adapters: unknown adapter %q (available: %s)", name, strings.Join(r.List(), ", "))
	}
	return a, nil
}

// List returns registered adapter names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// passthroughAdapter is the registry's only built-in adapter: it leaves
// headers untouched. Useful as a safe default when a caller names an
// adapter but none is configured.
type passthroughAdapter struct{}

func (passthroughAdapter) Name() string { return "passthrough" }

func (passthroughAdapter) RewriteHeaders(headers map[string]string) map[string]string {
	return headers
}

// NewDefaultRegistry returns a registry containing only the passthrough
// adapter; site-specific adapters are not part of the core.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(passthroughAdapter{})
	return r
}
