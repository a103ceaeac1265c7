// Package helpers lets one extension publish named pure functions that other
// extensions can discover and call directly.
//
// DESIGN: Helpers are stored in an internal/registry.Namespaced keyed by
// (extension ID, helper name). Registration replaces an extension's whole
// collection; unload removes it en masse.
//
// SECURITY: A helper is called with its explicit arguments only. No caller
// context, logger or environment is passed along, so invoking another
// extension's helper never lends it the caller's privileges.
//
// Purity cannot be verified here. Each helper must carry a capability claim
// with every flag set, and an optional host Validator gets the final word
// before a collection is accepted.
package helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"

	"github.com/compresr/extension-sdk/internal/registry"
)

var (
	// ErrCapabilityClaim means a helper did not claim every required capability.
	ErrCapabilityClaim = errors.New("helper capability claim incomplete")
	// ErrRejected means the host validator refused the collection.
	ErrRejected = errors.New("helper collection rejected")
	// ErrNilHelper means a collection entry had no function.
	ErrNilHelper = errors.New("helper function is nil")
	// ErrEmptyName means a collection entry had an empty name.
	ErrEmptyName = errors.New("helper name is empty")
	// ErrEmptyExtensionID means no owning extension was given.
	ErrEmptyExtensionID = errors.New("extension id is empty")
	// ErrNotFound means no helper is registered under the requested pair.
	ErrNotFound = errors.New("helper not found")
)

// Func is a helper. It sees only the arguments it is called with.
type Func func(args ...any) (any, error)

// Capabilities is the claim a helper makes about itself. Every flag must be
// true for the helper to be accepted.
type Capabilities struct {
	Pure          bool `json:"pure"`
	NoNetwork     bool `json:"noNetwork"`
	NoFileSystem  bool `json:"noFileSystem"`
	NoEnvironment bool `json:"noEnvironment"`
}

// PureCapabilities is the only claim the registry accepts.
var PureCapabilities = Capabilities{Pure: true, NoNetwork: true, NoFileSystem: true, NoEnvironment: true}

// missing returns the names of flags that are not set.
func (c Capabilities) missing() []string {
	var out []string
	if !c.Pure {
		out = append(out, "pure")
	}
	if !c.NoNetwork {
		out = append(out, "noNetwork")
	}
	if !c.NoFileSystem {
		out = append(out, "noFileSystem")
	}
	if !c.NoEnvironment {
		out = append(out, "noEnvironment")
	}
	return out
}

// Helper is one entry of a collection.
type Helper struct {
	Fn           Func
	Description  string
	Version      string
	Capabilities Capabilities
}

// Collection maps helper names to helpers.
type Collection map[string]Helper

// Info describes a registered helper for discovery. It never carries the
// function itself.
type Info struct {
	ExtensionID  string       `json:"extensionId"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// QualifiedName returns "extensionID.name".
func (i Info) QualifiedName() string { return i.ExtensionID + "." + i.Name }

// Validator is a host-side check run before a collection is accepted, for
// example static analysis or a sandboxed trial run.
type Validator interface {
	ValidateHelpers(extensionID string, collection Collection) (accept bool, reason string)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(extensionID string, collection Collection) (bool, string)

// ValidateHelpers implements Validator.
func (f ValidatorFunc) ValidateHelpers(extensionID string, collection Collection) (bool, string) {
	return f(extensionID, collection)
}

// Metrics receives helper call counters. monitoring.MetricsCollector satisfies it.
type Metrics interface {
	RecordHelperCall(found bool)
}

// Option configures a Registry.
type Option func(*Registry)

// WithValidator installs a host validator.
func WithValidator(v Validator) Option {
	return func(r *Registry) { r.validator = v }
}

// WithMetrics installs a metrics sink for Call.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry holds every extension's helper collection.
type Registry struct {
	entries   *registry.Namespaced[Helper]
	validator Validator
	metrics   Metrics
}

// NewRegistry creates an empty helper registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: registry.New[Helper]()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register replaces the collection published by extensionID. On any error
// the previous collection is left untouched.
func (r *Registry) Register(extensionID string, collection Collection) error {
	if extensionID == "" {
		return ErrEmptyExtensionID
	}
	for name, h := range collection {
		if strings.TrimSpace(name) == "" {
			return ErrEmptyName
		}
		if h.Fn == nil {
			return fmt.Errorf("%w: %s.%s", ErrNilHelper, extensionID, name)
		}
		if missing := h.Capabilities.missing(); len(missing) > 0 {
			return fmt.Errorf("%w: %s.%s does not claim %s",
				ErrCapabilityClaim, extensionID, name, strings.Join(missing, ", "))
		}
	}

	if r.validator != nil {
		if ok, reason := r.validator.ValidateHelpers(extensionID, collection); !ok {
			log.Warn().
				Str("extension_id", extensionID).
				Str("reason", reason).
				Msg("helpers_rejected")
			return fmt.Errorf("%w: %s", ErrRejected, reason)
		}
	}

	r.entries.Replace(extensionID, collection)
	log.Debug().
		Str("extension_id", extensionID).
		Int("count", len(collection)).
		Msg("helpers_registered")
	return nil
}

// Get returns the function extensionID registered under name.
func (r *Registry) Get(extensionID, name string) (Func, bool) {
	h, ok := r.entries.Get(extensionID, name)
	if !ok {
		return nil, false
	}
	return h.Fn, true
}

// GetAll returns a copy of extensionID's collection. The boolean is false if
// the extension never registered.
func (r *Registry) GetAll(extensionID string) (Collection, bool) {
	all, ok := r.entries.GetAll(extensionID)
	if !ok {
		return nil, false
	}
	return Collection(all), true
}

// Has reports whether extensionID registered a helper named name.
func (r *Registry) Has(extensionID, name string) bool {
	return r.entries.Has(extensionID, name)
}

// List returns metadata for every helper, sorted by extension ID then name.
func (r *Registry) List() []Info {
	entries := r.entries.Entries()
	out := make([]Info, len(entries))
	for i, e := range entries {
		out[i] = Info{
			ExtensionID:  e.ExtensionID,
			Name:         e.Name,
			Description:  e.Value.Description,
			Version:      e.Value.Version,
			Capabilities: e.Value.Capabilities,
		}
	}
	return out
}

// Search fuzzy-matches pattern against "extensionID.name", best match first.
// An empty pattern returns List().
func (r *Registry) Search(pattern string) []Info {
	all := r.List()
	if pattern == "" {
		return all
	}

	names := make([]string, len(all))
	for i, info := range all {
		names[i] = info.QualifiedName()
	}
	matches := fuzzy.Find(pattern, names)
	out := make([]Info, 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out
}

// Unregister removes extensionID's collection. It reports whether one existed.
func (r *Registry) Unregister(extensionID string) bool {
	_, existed := r.entries.GetAll(extensionID)
	r.entries.RemoveAll(extensionID)
	return existed
}

// Call looks up a helper and invokes it with args.
func (r *Registry) Call(extensionID, name string, args ...any) (any, error) {
	fn, ok := r.Get(extensionID, name)
	if r.metrics != nil {
		r.metrics.RecordHelperCall(ok)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, extensionID, name)
	}
	return fn(args...)
}

// Scoped returns the view of the registry handed to one extension.
func (r *Registry) Scoped(extensionID string) *Scoped {
	return &Scoped{registry: r, extensionID: extensionID}
}

// =============================================================================
// SCOPED - per-extension view
// =============================================================================

// Scoped publishes helpers as one extension and reads everyone's helpers.
type Scoped struct {
	registry    *Registry
	extensionID string
}

// Register replaces the calling extension's collection.
func (s *Scoped) Register(collection Collection) error {
	return s.registry.Register(s.extensionID, collection)
}

func (s *Scoped) Get(extensionID, name string) (Func, bool) {
	return s.registry.Get(extensionID, name)
}

func (s *Scoped) GetAll(extensionID string) (Collection, bool) {
	return s.registry.GetAll(extensionID)
}

func (s *Scoped) Has(extensionID, name string) bool {
	return s.registry.Has(extensionID, name)
}

func (s *Scoped) List() []Info { return s.registry.List() }

func (s *Scoped) Search(pattern string) []Info { return s.registry.Search(pattern) }

// Call invokes another extension's helper with explicit arguments only.
func (s *Scoped) Call(extensionID, name string, args ...any) (any, error) {
	return s.registry.Call(extensionID, name, args...)
}
