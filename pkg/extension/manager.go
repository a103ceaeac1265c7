package extension

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/compresr/extension-sdk/pkg/environment"
	"github.com/compresr/extension-sdk/pkg/helpers"
	"github.com/compresr/extension-sdk/pkg/ipc"
	"github.com/compresr/extension-sdk/pkg/pipeline"
	"github.com/compresr/extension-sdk/pkg/storage"
)

var (
	// ErrAlreadyLoaded means an extension with the same name is loaded.
	ErrAlreadyLoaded = errors.New("extension already loaded")
	// ErrNotLoaded means no extension with that name is loaded.
	ErrNotLoaded = errors.New("extension not loaded")
	// ErrDisabled means the host configuration disables the extension.
	ErrDisabled = errors.New("extension disabled")
	// ErrActivation wraps an Activate failure.
	ErrActivation = errors.New("extension activation failed")
	// ErrIncompleteHost means a required Host field is nil.
	ErrIncompleteHost = errors.New("host is missing a required registry")
	// ErrPanic wraps a panic raised by Activate or Deactivate.
	ErrPanic = errors.New("extension panicked")
	// ErrReservedName means the name belongs to the host itself.
	ErrReservedName = errors.New("extension name is reserved by the host")
)

// LoggerFactory builds the logger handed to an extension.
// monitoring.Logger satisfies it.
type LoggerFactory interface {
	ForExtension(extensionID string) zerolog.Logger
}

// Metrics receives lifecycle counters. monitoring.MetricsCollector satisfies it.
type Metrics interface {
	RecordExtensionLoaded()
	RecordExtensionUnloaded()
}

// Host bundles the registries extensions register into.
type Host struct {
	Pipeline    *pipeline.Registry
	Helpers     *helpers.Registry
	Environment *environment.Source
	Storage     storage.Backend
	UI          *UIRegistry
	Process     *ProcessRegistry

	Loggers  LoggerFactory // optional
	Metrics  Metrics       // optional
	Disabled []string      // extension names that may not load
	Reserved []string      // namespaces the host registers into itself
}

// NewHost creates a Host with empty registries over backend.
func NewHost(backend storage.Backend) Host {
	return Host{
		Pipeline:    pipeline.NewRegistry(),
		Helpers:     helpers.NewRegistry(),
		Environment: environment.NewSource(),
		Storage:     backend,
		UI:          NewUIRegistry(),
		Process:     NewProcessRegistry(ipc.NewRegistry()),
	}
}

type loaded struct {
	ext  Extension
	meta Metadata
	ctx  *Context
}

// Manager owns the lifecycle of loaded extensions.
type Manager struct {
	host      Host
	loaded    map[string]*loaded
	order     []string
	disabled  map[string]bool
	reserved  map[string]bool
	manifests map[string]Manifest
	mu        sync.Mutex
}

// NewManager creates a manager for host.
func NewManager(host Host) (*Manager, error) {
	switch {
	case host.Pipeline == nil:
		return nil, fmt.Errorf("%w: Pipeline", ErrIncompleteHost)
	case host.Helpers == nil:
		return nil, fmt.Errorf("%w: Helpers", ErrIncompleteHost)
	case host.Environment == nil:
		return nil, fmt.Errorf("%w: Environment", ErrIncompleteHost)
	case host.Storage == nil:
		return nil, fmt.Errorf("%w: Storage", ErrIncompleteHost)
	case host.UI == nil:
		return nil, fmt.Errorf("%w: UI", ErrIncompleteHost)
	case host.Process == nil:
		return nil, fmt.Errorf("%w: Process", ErrIncompleteHost)
	}

	disabled := make(map[string]bool, len(host.Disabled))
	for _, name := range host.Disabled {
		disabled[name] = true
	}
	reserved := make(map[string]bool, len(host.Reserved))
	for _, name := range host.Reserved {
		reserved[name] = true
	}
	return &Manager{
		host:      host,
		loaded:    make(map[string]*loaded),
		disabled:  disabled,
		reserved:  reserved,
		manifests: make(map[string]Manifest),
	}, nil
}

// Host returns the registries the manager was built with.
func (m *Manager) Host() Host { return m.host }

// Load validates ext's metadata, builds its context and activates it.
// If Activate fails, anything it registered is removed again.
func (m *Manager) Load(ext Extension) error {
	meta := ext.Metadata()
	if err := meta.Validate(); err != nil {
		return err
	}
	id := meta.Name

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserved[id] {
		return fmt.Errorf("%w: %s", ErrReservedName, id)
	}
	if m.disabled[id] {
		return fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	if _, ok := m.loaded[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, id)
	}
	if mf, ok := m.manifests[id]; ok && mf.Version != meta.Version {
		log.Warn().
			Str("extension_id", id).
			Str("manifest_version", mf.Version).
			Str("version", meta.Version).
			Msg("manifest_version_mismatch")
	}

	ctx := m.newContext(id)
	if err := safeCall(func() error { return ext.Activate(ctx) }); err != nil {
		removed := m.cleanup(id, ctx)
		log.Error().
			Err(err).
			Str("extension_id", id).
			Int("rolled_back", removed).
			Msg("extension_activation_failed")
		return fmt.Errorf("%w: %s: %w", ErrActivation, id, err)
	}

	m.loaded[id] = &loaded{ext: ext, meta: meta, ctx: ctx}
	m.order = append(m.order, id)
	if m.host.Metrics != nil {
		m.host.Metrics.RecordExtensionLoaded()
	}
	log.Info().
		Str("extension_id", id).
		Str("version", meta.Version).
		Msg("extension_loaded")
	return nil
}

// Unload deactivates the extension and removes everything it registered.
// Cleanup happens even when Deactivate fails; that failure is returned
// afterwards.
func (m *Manager) Unload(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(id)
}

func (m *Manager) unloadLocked(id string) error {
	l, ok := m.loaded[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}

	deactivateErr := safeCall(l.ext.Deactivate)
	removed := m.cleanup(id, l.ctx)

	delete(m.loaded, id)
	for i, name := range m.order {
		if name == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.host.Metrics != nil {
		m.host.Metrics.RecordExtensionUnloaded()
	}

	ev := log.Info()
	if deactivateErr != nil {
		ev = log.Warn().Err(deactivateErr)
	}
	ev.Str("extension_id", id).Int("removed", removed).Msg("extension_unloaded")

	if deactivateErr != nil {
		return fmt.Errorf("deactivate %s: %w", id, deactivateErr)
	}
	return nil
}

// Shutdown unloads every extension in reverse load order.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for len(m.order) > 0 {
		id := m.order[len(m.order)-1]
		if err := m.unloadLocked(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a loaded extension.
func (m *Manager) Get(id string) (Extension, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loaded[id]
	if !ok {
		return nil, false
	}
	return l.ext, true
}

// List returns the metadata of loaded extensions, sorted by name.
func (m *Manager) List() []Metadata {
	m.mu.Lock()
	out := make([]Metadata, 0, len(m.loaded))
	for _, l := range m.loaded {
		out = append(out, l.meta)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadManifests reads the manifests in dir and remembers them so Load can
// check declared versions. Disabled extensions are left out.
func (m *Manager) LoadManifests(ctx context.Context, dir string) ([]Manifest, error) {
	all, err := ReadManifests(ctx, dir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Manifest, 0, len(all))
	for _, mf := range all {
		if m.disabled[mf.Name] {
			log.Debug().Str("extension_id", mf.Name).Msg("manifest_skipped_disabled")
			continue
		}
		m.manifests[mf.Name] = mf
		out = append(out, mf)
	}
	return out, nil
}

func (m *Manager) newContext(id string) *Context {
	logger := log.Logger.With().Str("extension_id", id).Logger()
	if m.host.Loggers != nil {
		logger = m.host.Loggers.ForExtension(id)
	}
	return &Context{
		extensionID: id,
		pipeline:    m.host.Pipeline.Registrar(id),
		helpers:     m.host.Helpers.Scoped(id),
		environment: m.host.Environment.View(),
		storage:     storage.Namespaced(m.host.Storage, id),
		logger:      logger,
		ui:          m.host.UI.Registrar(id),
		process:     m.host.Process.Registrar(id),
	}
}

// cleanup removes every registration owned by id. It cannot fail.
func (m *Manager) cleanup(id string, ctx *Context) int {
	removed := m.host.Pipeline.UnregisterAll(id)
	if m.host.Helpers.Unregister(id) {
		removed++
	}
	removed += m.host.UI.removeAll(id)
	removed += m.host.Process.removeAll(id)
	ctx.environment.Close()
	return removed
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("extension_panic")
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return fn()
}
