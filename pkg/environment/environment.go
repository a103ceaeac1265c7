// Package environment exposes environment variable NAMES to extensions so they
// can autocomplete and validate {{NAME}} placeholders.
//
// SECURITY: No function or type in this package returns a variable value.
// The host feeds key names into a Source; dotenv files are read and their
// values discarded immediately. Change notifications carry names only.
//
// DESIGN: The Source keeps one key set per named environment and tracks the
// active one. Subscribers are notified through an eventbus only when the
// active key set or the active environment actually changes.
package environment

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/compresr/extension-sdk/internal/eventbus"
)

// ErrUnknownEnvironment means Switch named an environment with no key set.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Change describes a key set change. It never carries values.
type Change struct {
	Environment string   `json:"environment"`
	Keys        []string `json:"keys"`
	Added       []string `json:"added,omitempty"`
	Removed     []string `json:"removed,omitempty"`
}

// Keys is the read-only API handed to extensions.
type Keys interface {
	// GetKeys returns the names in the active environment, sorted. The slice
	// is a fresh copy reflecting the state at call time.
	GetKeys() []string
	// Has reports whether the active environment defines key.
	Has(key string) bool
	// OnChange subscribes to key set changes and returns an unsubscribe func.
	OnChange(fn func(Change)) func()
}

// Source is the host-side owner of environment key names.
type Source struct {
	sets   map[string][]string
	active string
	bus    *eventbus.Bus[Change]
	mu     sync.RWMutex
}

// NewSource creates a Source with no active environment.
func NewSource() *Source {
	return &Source{
		sets: make(map[string][]string),
		bus:  eventbus.New[Change]("environment"),
	}
}

// SetKeys records the key names of environment. If environment is active and
// its set changed, subscribers are notified.
func (s *Source) SetKeys(environment string, names []string) {
	next := normalize(names)

	s.mu.Lock()
	prev := s.sets[environment]
	s.sets[environment] = next
	isActive := environment == s.active
	s.mu.Unlock()

	if isActive {
		s.publish(environment, prev, next)
	}
}

// Switch makes environment active.
func (s *Source) Switch(environment string) error {
	s.mu.Lock()
	next, ok := s.sets[environment]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, environment)
	}
	if environment == s.active {
		s.mu.Unlock()
		return nil
	}
	prev := s.sets[s.active]
	s.active = environment
	s.mu.Unlock()

	log.Debug().Str("environment", environment).Int("keys", len(next)).Msg("environment_switched")
	s.notify(Change{
		Environment: environment,
		Keys:        copyKeys(next),
		Added:       diff(next, prev),
		Removed:     diff(prev, next),
	})
	return nil
}

// Clear forgets every environment and deactivates the current one.
func (s *Source) Clear() {
	s.mu.Lock()
	prev := s.sets[s.active]
	hadActive := s.active != ""
	s.sets = make(map[string][]string)
	s.active = ""
	s.mu.Unlock()

	if hadActive {
		s.notify(Change{Keys: []string{}, Removed: copyKeys(prev)})
	}
}

// LoadDotenv reads key names from a dotenv file into environment. Values are
// dropped as soon as the file is parsed.
func (s *Source) LoadDotenv(environment, path string) error {
	names, err := DotenvKeys(path)
	if err != nil {
		return err
	}
	s.SetKeys(environment, names)
	return nil
}

// DotenvKeys returns the sorted key names defined in a dotenv file.
func DotenvKeys(path string) ([]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read dotenv %s: %w", path, err)
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Active returns the active environment name, or "" when none is active.
func (s *Source) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// GetKeys implements Keys.
func (s *Source) GetKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyKeys(s.sets[s.active])
}

// Has implements Keys.
func (s *Source) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[s.active]
	i := sort.SearchStrings(set, key)
	return i < len(set) && set[i] == key
}

// OnChange implements Keys.
func (s *Source) OnChange(fn func(Change)) func() {
	return s.bus.Subscribe(fn)
}

// Subscribers returns the number of active OnChange subscriptions.
func (s *Source) Subscribers() int { return s.bus.Count() }

// View returns a Keys view for one extension. Closing the view drops every
// subscription made through it.
func (s *Source) View() *View {
	return &View{source: s}
}

func (s *Source) publish(environment string, prev, next []string) {
	added := diff(next, prev)
	removed := diff(prev, next)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	s.notify(Change{
		Environment: environment,
		Keys:        copyKeys(next),
		Added:       added,
		Removed:     removed,
	})
}

func (s *Source) notify(c Change) {
	log.Debug().
		Str("environment", c.Environment).
		Int("added", len(c.Added)).
		Int("removed", len(c.Removed)).
		Msg("environment_keys_changed")
	s.bus.Publish(c)
}

// =============================================================================
// VIEW - per-extension Keys
// =============================================================================

// View is the Keys implementation handed to an extension.
type View struct {
	source *Source
	unsubs []func()
	closed bool
	mu     sync.Mutex
}

func (v *View) GetKeys() []string { return v.source.GetKeys() }

func (v *View) Has(key string) bool { return v.source.Has(key) }

// OnChange subscribes through the view. After Close it is a no-op.
func (v *View) OnChange(fn func(Change)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return func() {}
	}
	unsub := v.source.OnChange(fn)
	v.unsubs = append(v.unsubs, unsub)
	return unsub
}

// Close removes every subscription made through the view.
func (v *View) Close() {
	v.mu.Lock()
	unsubs := v.unsubs
	v.unsubs = nil
	v.closed = true
	v.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// normalize returns sorted, de-duplicated, non-empty names.
func normalize(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func copyKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// diff returns names in a that are not in b. Both must be sorted.
func diff(a, b []string) []string {
	var out []string
	for _, n := range a {
		i := sort.SearchStrings(b, n)
		if i >= len(b) || b[i] != n {
			out = append(out, n)
		}
	}
	return out
}
