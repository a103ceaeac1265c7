package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hook is one registration: a handler bound to a stage with a priority.
type Hook struct {
	ExtensionID string
	Stage       Stage
	Priority    int
	Handler     Handler
	Sequence    uint64 // registration order, breaks priority ties
}

// Registry holds registered hooks, one ordered list per stage.
// Lists are kept sorted by (priority, registration order) on insert.
type Registry struct {
	hooks map[Stage][]Hook
	seq   uint64
	mu    sync.RWMutex
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	hooks := make(map[Stage][]Hook, len(AllStages))
	for _, s := range AllStages {
		hooks[s] = make([]Hook, 0)
	}
	return &Registry{hooks: hooks}
}

// RegisterHook adds a hook owned by extensionID. Lower priorities run first;
// equal priorities run in registration order.
func (r *Registry) RegisterHook(extensionID string, stage Stage, handler Handler, priority int) error {
	if extensionID == "" {
		return ErrEmptyExtensionID
	}
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if isNil(handler) {
		return ErrNilHandler
	}
	if handler.Stage() != stage {
		return fmt.Errorf("%w: %s handler registered for %s", ErrStageMismatch, handler.Stage(), stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	h := Hook{
		ExtensionID: extensionID,
		Stage:       stage,
		Priority:    priority,
		Handler:     handler,
		Sequence:    r.seq,
	}

	list := r.hooks[stage]
	// First position whose priority is strictly greater keeps ties stable.
	idx := sort.Search(len(list), func(i int) bool { return list[i].Priority > priority })
	list = append(list, Hook{})
	copy(list[idx+1:], list[idx:])
	list[idx] = h
	r.hooks[stage] = list

	log.Debug().
		Str("extension_id", extensionID).
		Str("stage", string(stage)).
		Int("priority", priority).
		Msg("hook_registered")
	return nil
}

// UnregisterAll removes every hook owned by extensionID across all stages
// and returns how many were removed. It never fails and is idempotent.
func (r *Registry) UnregisterAll(extensionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for stage, list := range r.hooks {
		kept := make([]Hook, 0, len(list))
		for _, h := range list {
			if h.ExtensionID == extensionID {
				removed++
				continue
			}
			kept = append(kept, h)
		}
		r.hooks[stage] = kept
	}

	if removed > 0 {
		log.Debug().
			Str("extension_id", extensionID).
			Int("removed", removed).
			Msg("hooks_unregistered")
	}
	return removed
}

// Hooks returns a snapshot of the hooks for stage in execution order.
func (r *Registry) Hooks(stage Stage) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.hooks[stage]
	out := make([]Hook, len(list))
	copy(out, list)
	return out
}

// Count returns the number of hooks registered for stage.
func (r *Registry) Count(stage Stage) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[stage])
}

// Extensions returns the sorted IDs of extensions owning at least one hook.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, list := range r.hooks {
		for _, h := range list {
			seen[h.ExtensionID] = struct{}{}
		}
	}
	r.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registrar returns the registration view for one extension.
func (r *Registry) Registrar(extensionID string) *Registrar {
	return &Registrar{registry: r, extensionID: extensionID}
}

// =============================================================================
// REGISTRAR - per-extension view
// =============================================================================

// Registrar registers hooks on behalf of a single extension. The owning
// extension ID is fixed when the registrar is created.
type Registrar struct {
	registry    *Registry
	extensionID string
}

// ExtensionID returns the owning extension.
func (g *Registrar) ExtensionID() string { return g.extensionID }

// RegisterHook attaches handler to stage with an explicit priority.
func (g *Registrar) RegisterHook(stage Stage, handler Handler, priority int) error {
	return g.registry.RegisterHook(g.extensionID, stage, handler, priority)
}

// Register attaches handler to its own stage with DefaultPriority.
func (g *Registrar) Register(handler Handler) error {
	if isNil(handler) {
		return ErrNilHandler
	}
	return g.registry.RegisterHook(g.extensionID, handler.Stage(), handler, DefaultPriority)
}

// UnregisterAll removes every hook this extension registered.
func (g *Registrar) UnregisterAll() int {
	return g.registry.UnregisterAll(g.extensionID)
}
