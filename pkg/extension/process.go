package extension

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/compresr/extension-sdk/internal/registry"
	"github.com/compresr/extension-sdk/pkg/ipc"
)

// MenuItem is an application menu entry.
type MenuItem struct {
	ID          string                          `json:"id"`
	Label       string                          `json:"label"`
	Accelerator string                          `json:"accelerator,omitempty"`
	Click       func(ctx context.Context) error `json:"-"`
}

// ProtocolHandler handles URLs of a custom scheme, e.g. "myapp://...".
type ProtocolHandler struct {
	Scheme string
	Handle func(ctx context.Context, u *url.URL) error
}

// =============================================================================
// PROCESS REGISTRY - host side
// =============================================================================

// ProcessRegistry is the host's catalog of process-level capabilities.
// A URL scheme can be owned by only one extension at a time.
type ProcessRegistry struct {
	menus     *registry.Namespaced[MenuItem]
	protocols *registry.Namespaced[ProtocolHandler]
	ipc       *ipc.Registry
	schemeMu  sync.Mutex
}

// NewProcessRegistry creates an empty catalog over an IPC registry.
func NewProcessRegistry(ipcRegistry *ipc.Registry) *ProcessRegistry {
	return &ProcessRegistry{
		menus:     registry.New[MenuItem](),
		protocols: registry.New[ProtocolHandler](),
		ipc:       ipcRegistry,
	}
}

// IPC returns the IPC registry the host dispatches channels on.
func (p *ProcessRegistry) IPC() *ipc.Registry { return p.ipc }

// MenuItems returns every menu item, sorted by extension then ID.
func (p *ProcessRegistry) MenuItems() []registry.Entry[MenuItem] { return p.menus.Entries() }

// Schemes returns the registered URL schemes with their owners.
func (p *ProcessRegistry) Schemes() map[string]string {
	out := make(map[string]string)
	for _, e := range p.protocols.Entries() {
		out[e.Name] = e.ExtensionID
	}
	return out
}

// ClickMenuItem runs a menu item's action.
func (p *ProcessRegistry) ClickMenuItem(ctx context.Context, extensionID, id string) error {
	item, ok := p.menus.Get(extensionID, id)
	if !ok {
		return fmt.Errorf("menu item %s/%s not found", extensionID, id)
	}
	if item.Click == nil {
		return nil
	}
	return item.Click(ctx)
}

// OpenURL dispatches rawURL to the extension owning its scheme.
func (p *ProcessRegistry) OpenURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	for _, e := range p.protocols.Entries() {
		if e.Name == scheme {
			return e.Value.Handle(ctx, u)
		}
	}
	return fmt.Errorf("no protocol handler for scheme %q", scheme)
}

func (p *ProcessRegistry) removeAll(extensionID string) int {
	return p.menus.RemoveAll(extensionID) +
		p.protocols.RemoveAll(extensionID) +
		p.ipc.RemoveAll(extensionID)
}

// Registrar returns the process registrar for one extension.
func (p *ProcessRegistry) Registrar(extensionID string) *ProcessRegistrar {
	return &ProcessRegistrar{process: p, extensionID: extensionID, ipc: p.ipc.Scoped(extensionID)}
}

// =============================================================================
// PROCESS REGISTRAR - extension side
// =============================================================================

// ProcessRegistrar registers process capabilities for one extension.
type ProcessRegistrar struct {
	process     *ProcessRegistry
	extensionID string
	ipc         *ipc.Scoped
}

// IPC returns the extension's IPC handle registrar. Channels are namespaced
// with the extension ID.
func (r *ProcessRegistrar) IPC() *ipc.Scoped { return r.ipc }

// RegisterMenuItem adds or replaces a menu item.
func (r *ProcessRegistrar) RegisterMenuItem(item MenuItem) error {
	if item.ID == "" || item.Label == "" {
		return fmt.Errorf("%w: menu item needs id and label", ErrInvalidCapability)
	}
	r.process.menus.Put(r.extensionID, item.ID, item)
	return nil
}

// RegisterProtocolHandler claims a URL scheme.
func (r *ProcessRegistrar) RegisterProtocolHandler(h ProtocolHandler) error {
	scheme := strings.ToLower(strings.TrimSuffix(h.Scheme, "://"))
	if scheme == "" || h.Handle == nil {
		return fmt.Errorf("%w: protocol handler needs scheme and Handle", ErrInvalidCapability)
	}

	r.process.schemeMu.Lock()
	defer r.process.schemeMu.Unlock()

	for _, e := range r.process.protocols.Entries() {
		if e.Name == scheme && e.ExtensionID != r.extensionID {
			return fmt.Errorf("%w: scheme %q already handled by %s", ErrInvalidCapability, scheme, e.ExtensionID)
		}
	}
	h.Scheme = scheme
	r.process.protocols.Put(r.extensionID, scheme, h)
	return nil
}
