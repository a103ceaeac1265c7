package extension

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/compresr/extension-sdk/internal/registry"
)

// ErrInvalidCapability means a UI or process capability failed validation.
var ErrInvalidCapability = errors.New("invalid capability")

// BlockGroup is the schema group of an editor block.
type BlockGroup string

const (
	GroupBlock  BlockGroup = "block"
	GroupInline BlockGroup = "inline"
)

// Attribute describes one block attribute. Default must be JSON-encodable.
type Attribute struct {
	Default  any  `json:"default,omitempty"`
	Rendered bool `json:"rendered"`
}

// Block is a custom editor node. Rendering belongs to the host.
type Block struct {
	Name       string               `json:"name"`
	Group      BlockGroup           `json:"group"`
	Attributes map[string]Attribute `json:"attributes,omitempty"`
	Atom       bool                 `json:"atom"`
	Draggable  bool                 `json:"draggable"`
}

// SlashCommand is an entry of the editor's "/" menu.
type SlashCommand struct {
	ID          string                                       `json:"id"`
	Title       string                                       `json:"title"`
	Description string                                       `json:"description,omitempty"`
	Keywords    []string                                     `json:"keywords,omitempty"`
	Run         func(ctx context.Context, args string) error `json:"-"`
}

// SidebarPosition is where a sidebar docks.
type SidebarPosition string

const (
	SidebarLeft  SidebarPosition = "left"
	SidebarRight SidebarPosition = "right"
)

// Sidebar is a panel contributed to the host window.
type Sidebar struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Icon     string          `json:"icon,omitempty"`
	Position SidebarPosition `json:"position"`
}

// =============================================================================
// UI REGISTRY - host side
// =============================================================================

// UIRegistry is the host's catalog of UI capabilities from every extension.
type UIRegistry struct {
	blocks   *registry.Namespaced[Block]
	commands *registry.Namespaced[SlashCommand]
	sidebars *registry.Namespaced[Sidebar]
}

// NewUIRegistry creates an empty UI catalog.
func NewUIRegistry() *UIRegistry {
	return &UIRegistry{
		blocks:   registry.New[Block](),
		commands: registry.New[SlashCommand](),
		sidebars: registry.New[Sidebar](),
	}
}

// Blocks returns every registered block, sorted by extension then name.
func (u *UIRegistry) Blocks() []registry.Entry[Block] { return u.blocks.Entries() }

// SlashCommands returns every registered command.
func (u *UIRegistry) SlashCommands() []registry.Entry[SlashCommand] { return u.commands.Entries() }

// Sidebars returns every registered sidebar.
func (u *UIRegistry) Sidebars() []registry.Entry[Sidebar] { return u.sidebars.Entries() }

// SearchSlashCommands ranks commands against what the user typed after "/".
// Titles and keywords are both searched. An empty query returns every command.
func (u *UIRegistry) SearchSlashCommands(query string) []registry.Entry[SlashCommand] {
	all := u.commands.Entries()
	query = strings.TrimPrefix(query, "/")
	if query == "" {
		return all
	}

	targets := make([]string, len(all))
	for i, e := range all {
		targets[i] = e.Value.Title + " " + strings.Join(e.Value.Keywords, " ")
	}
	matches := fuzzy.Find(query, targets)
	out := make([]registry.Entry[SlashCommand], 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out
}

// RunSlashCommand runs a command by its owning extension and ID.
func (u *UIRegistry) RunSlashCommand(ctx context.Context, extensionID, id, args string) error {
	cmd, ok := u.commands.Get(extensionID, id)
	if !ok {
		return fmt.Errorf("slash command %s/%s not found", extensionID, id)
	}
	return cmd.Run(ctx, args)
}

func (u *UIRegistry) removeAll(extensionID string) int {
	return u.blocks.RemoveAll(extensionID) +
		u.commands.RemoveAll(extensionID) +
		u.sidebars.RemoveAll(extensionID)
}

// Registrar returns the UI registrar for one extension.
func (u *UIRegistry) Registrar(extensionID string) *UIRegistrar {
	return &UIRegistrar{ui: u, extensionID: extensionID}
}

// =============================================================================
// UI REGISTRAR - extension side
// =============================================================================

// UIRegistrar registers UI capabilities for one extension.
type UIRegistrar struct {
	ui          *UIRegistry
	extensionID string
}

// RegisterBlock adds or replaces an editor block.
func (r *UIRegistrar) RegisterBlock(b Block) error {
	if b.Name == "" {
		return fmt.Errorf("%w: block name is required", ErrInvalidCapability)
	}
	switch b.Group {
	case "":
		b.Group = GroupBlock
	case GroupBlock, GroupInline:
	default:
		return fmt.Errorf("%w: block %q has unknown group %q", ErrInvalidCapability, b.Name, b.Group)
	}
	r.ui.blocks.Put(r.extensionID, b.Name, b)
	return nil
}

// RegisterSlashCommand adds or replaces a slash command.
func (r *UIRegistrar) RegisterSlashCommand(c SlashCommand) error {
	if c.ID == "" || c.Title == "" {
		return fmt.Errorf("%w: slash command needs id and title", ErrInvalidCapability)
	}
	if c.Run == nil {
		return fmt.Errorf("%w: slash command %q has no Run", ErrInvalidCapability, c.ID)
	}
	r.ui.commands.Put(r.extensionID, c.ID, c)
	return nil
}

// RegisterSidebar adds or replaces a sidebar.
func (r *UIRegistrar) RegisterSidebar(s Sidebar) error {
	if s.ID == "" || s.Title == "" {
		return fmt.Errorf("%w: sidebar needs id and title", ErrInvalidCapability)
	}
	switch s.Position {
	case "":
		s.Position = SidebarLeft
	case SidebarLeft, SidebarRight:
	default:
		return fmt.Errorf("%w: sidebar %q has unknown position %q", ErrInvalidCapability, s.ID, s.Position)
	}
	r.ui.sidebars.Put(r.extensionID, s.ID, s)
	return nil
}
