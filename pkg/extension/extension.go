// Package extension defines what an extension is and how the host loads one.
//
// DESIGN: Each extension receives exactly one Context, built by the Manager
// before Activate and never changed afterwards. Everything the extension
// registers through it is keyed by the extension ID, which is what lets
// Unload remove hooks, helpers, UI, process capabilities and IPC channels
// in one sweep even if the extension misbehaved.
//
// FILES:
//   - extension.go: Extension interface, Base, Context
//   - metadata.go: Metadata, manifests
//   - ui.go: blocks, slash commands, sidebars
//   - process.go: menu items, protocol handlers, IPC
//   - manager.go: load / unload lifecycle
package extension

import (
	"github.com/rs/zerolog"

	"github.com/compresr/extension-sdk/pkg/environment"
	"github.com/compresr/extension-sdk/pkg/helpers"
	"github.com/compresr/extension-sdk/pkg/pipeline"
	"github.com/compresr/extension-sdk/pkg/storage"
)

// Extension is implemented by every extension.
type Extension interface {
	Metadata() Metadata
	// Activate receives the extension's context. Registrations made before
	// an error is returned are rolled back.
	Activate(ctx *Context) error
	// Deactivate releases the extension's own resources. Registrations are
	// removed by the host whether or not it succeeds.
	Deactivate() error
}

// Base is an embeddable Extension that keeps the context it was activated
// with. Embedders overriding Activate should call Base.Activate first.
type Base struct {
	Meta Metadata
	ctx  *Context
}

func (b *Base) Metadata() Metadata { return b.Meta }

func (b *Base) Activate(ctx *Context) error {
	b.ctx = ctx
	return nil
}

func (b *Base) Deactivate() error { return nil }

// Context returns the context passed to Activate, or nil before activation.
func (b *Base) Context() *Context { return b.ctx }

// =============================================================================
// CONTEXT
// =============================================================================

// Context is the extension's only handle on the host.
type Context struct {
	extensionID string
	pipeline    *pipeline.Registrar
	helpers     *helpers.Scoped
	environment *environment.View
	storage     storage.Storage
	logger      zerolog.Logger
	ui          *UIRegistrar
	process     *ProcessRegistrar
}

func (c *Context) ExtensionID() string { return c.extensionID }

// Pipeline registers request pipeline hooks.
func (c *Context) Pipeline() *pipeline.Registrar { return c.pipeline }

// Helpers publishes this extension's helpers and reads everyone's.
func (c *Context) Helpers() *helpers.Scoped { return c.helpers }

// Environment exposes environment key names. Values are never reachable.
func (c *Context) Environment() environment.Keys { return c.environment }

// Storage is private to this extension.
func (c *Context) Storage() storage.Storage { return c.storage }

// Logger carries the extension_id field.
func (c *Context) Logger() zerolog.Logger { return c.logger }

func (c *Context) UI() *UIRegistrar { return c.ui }

func (c *Context) Process() *ProcessRegistrar { return c.process }
