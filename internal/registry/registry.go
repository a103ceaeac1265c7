// Package registry provides the namespaced capability registry shared by the SDK.
//
// DESIGN: Thread-safe two-level map of extension ID → name → value.
// Every capability an extension publishes (helpers, blocks, slash commands,
// sidebars, IPC channels) is keyed by the owning extension so that:
//   - two extensions can publish the same name without colliding
//   - unloading an extension removes everything it owns in one call
//
// Lookups never fail loudly: a miss is reported as (zero, false).
package registry

import (
	"sort"
	"sync"
)

// Entry is one value together with the keys it was registered under.
type Entry[T any] struct {
	ExtensionID string
	Name        string
	Value       T
}

// Namespaced is a registry of values grouped by owning extension.
type Namespaced[T any] struct {
	entries map[string]map[string]T
	mu      sync.RWMutex
}

// New creates an empty namespaced registry.
func New[T any]() *Namespaced[T] {
	return &Namespaced[T]{
		entries: make(map[string]map[string]T),
	}
}

// Put stores a single value, overwriting any previous value under the same name.
func (r *Namespaced[T]) Put(extensionID, name string, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.entries[extensionID]
	if !ok {
		ns = make(map[string]T)
		r.entries[extensionID] = ns
	}
	ns[name] = value
}

// Replace swaps the full collection owned by an extension.
// An empty collection leaves the extension registered with no values.
func (r *Namespaced[T]) Replace(extensionID string, values map[string]T) {
	ns := make(map[string]T, len(values))
	for name, v := range values {
		ns[name] = v
	}

	r.mu.Lock()
	r.entries[extensionID] = ns
	r.mu.Unlock()
}

// Get returns the value registered by extensionID under name.
func (r *Namespaced[T]) Get(extensionID, name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	ns, ok := r.entries[extensionID]
	if !ok {
		return zero, false
	}
	v, ok := ns[name]
	if !ok {
		return zero, false
	}
	return v, true
}

// GetAll returns a copy of every value owned by extensionID.
// The boolean is false if the extension never registered anything.
func (r *Namespaced[T]) GetAll(extensionID string) (map[string]T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.entries[extensionID]
	if !ok {
		return nil, false
	}
	out := make(map[string]T, len(ns))
	for name, v := range ns {
		out[name] = v
	}
	return out, true
}

// Has reports whether extensionID registered a value under name.
func (r *Namespaced[T]) Has(extensionID, name string) bool {
	_, ok := r.Get(extensionID, name)
	return ok
}

// Delete removes a single value. It reports whether anything was removed.
func (r *Namespaced[T]) Delete(extensionID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.entries[extensionID]
	if !ok {
		return false
	}
	if _, ok := ns[name]; !ok {
		return false
	}
	delete(ns, name)
	return true
}

// RemoveAll drops everything owned by extensionID and returns how many
// values were removed. Safe to call repeatedly.
func (r *Namespaced[T]) RemoveAll(extensionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.entries[extensionID]
	if !ok {
		return 0
	}
	delete(r.entries, extensionID)
	return len(ns)
}

// Entries returns every value, sorted by extension ID then name.
func (r *Namespaced[T]) Entries() []Entry[T] {
	r.mu.RLock()
	out := make([]Entry[T], 0, len(r.entries))
	for extID, ns := range r.entries {
		for name, v := range ns {
			out = append(out, Entry[T]{ExtensionID: extID, Name: name, Value: v})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExtensionID != out[j].ExtensionID {
			return out[i].ExtensionID < out[j].ExtensionID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Extensions returns the sorted IDs of extensions that own a collection.
func (r *Namespaced[T]) Extensions() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the total number of values across all extensions.
func (r *Namespaced[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ns := range r.entries {
		n += len(ns)
	}
	return n
}
