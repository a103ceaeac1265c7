// Package ipc routes messages from a renderer to handlers registered by
// extensions.
//
// DESIGN: Channels are namespaced "extensionID:channel" so two extensions can
// both register "save" without colliding, and unloading an extension drops
// all of its channels in one call. The Bridge exposes the registry over a
// WebSocket for hosts whose renderer cannot call handlers in-process.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/compresr/extension-sdk/internal/registry"
)

// Separator joins extension ID and channel name.
const Separator = ":"

var (
	// ErrNoHandler means nothing is registered on the channel.
	ErrNoHandler = errors.New("no handler for channel")
	// ErrNilHandler means Handle was given a nil handler.
	ErrNilHandler = errors.New("ipc handler is nil")
	// ErrInvalidChannel means a channel name was empty or malformed.
	ErrInvalidChannel = errors.New("invalid channel name")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("ipc handler panicked")
)

// Handler answers one invocation. The result must be JSON-encodable when the
// call arrives through a Bridge.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// ChannelName returns the full name of an extension's channel.
func ChannelName(extensionID, channel string) string {
	return extensionID + Separator + channel
}

// SplitChannel splits a full channel name into extension ID and channel.
func SplitChannel(full string) (extensionID, channel string, err error) {
	extensionID, channel, ok := strings.Cut(full, Separator)
	if !ok || extensionID == "" || channel == "" {
		return "", "", fmt.Errorf("%w: %q (want extensionID%schannel)", ErrInvalidChannel, full, Separator)
	}
	return extensionID, channel, nil
}

// Registry holds IPC handlers by owning extension.
type Registry struct {
	handlers *registry.Namespaced[Handler]
}

// NewRegistry creates an empty IPC registry.
func NewRegistry() *Registry {
	return &Registry{handlers: registry.New[Handler]()}
}

// Handle registers h on extensionID's channel, replacing any previous handler.
func (r *Registry) Handle(extensionID, channel string, h Handler) error {
	if extensionID == "" || channel == "" || strings.Contains(extensionID, Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, ChannelName(extensionID, channel))
	}
	if h == nil {
		return ErrNilHandler
	}
	r.handlers.Put(extensionID, channel, h)
	log.Debug().Str("extension_id", extensionID).Str("channel", channel).Msg("ipc_handler_registered")
	return nil
}

// Invoke calls the handler registered on a full channel name.
func (r *Registry) Invoke(ctx context.Context, fullChannel string, payload json.RawMessage) (result any, err error) {
	extensionID, channel, err := SplitChannel(fullChannel)
	if err != nil {
		return nil, err
	}
	h, ok := r.handlers.Get(extensionID, channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, fullChannel)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("channel", fullChannel).
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("ipc_handler_panic")
			result, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return h(ctx, payload)
}

// Remove drops one channel. It reports whether it existed.
func (r *Registry) Remove(extensionID, channel string) bool {
	return r.handlers.Delete(extensionID, channel)
}

// RemoveAll drops every channel owned by extensionID. Safe to call repeatedly.
func (r *Registry) RemoveAll(extensionID string) int {
	return r.handlers.RemoveAll(extensionID)
}

// Channels returns every full channel name, sorted.
func (r *Registry) Channels() []string {
	entries := r.handlers.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = ChannelName(e.ExtensionID, e.Name)
	}
	return out
}

// Scoped returns the view of the registry handed to one extension.
func (r *Registry) Scoped(extensionID string) *Scoped {
	return &Scoped{registry: r, extensionID: extensionID}
}

// Scoped registers handlers on behalf of one extension.
type Scoped struct {
	registry    *Registry
	extensionID string
}

// Handle registers h on the extension's own channel.
func (s *Scoped) Handle(channel string, h Handler) error {
	return s.registry.Handle(s.extensionID, channel, h)
}

// RemoveHandler drops one of the extension's channels.
func (s *Scoped) RemoveHandler(channel string) bool {
	return s.registry.Remove(s.extensionID, channel)
}

// Invoke calls any extension's channel by full name.
func (s *Scoped) Invoke(ctx context.Context, fullChannel string, payload json.RawMessage) (any, error) {
	return s.registry.Invoke(ctx, fullChannel, payload)
}
