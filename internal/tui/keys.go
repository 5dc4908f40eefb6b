package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap binds board actions to keys. It implements help.KeyMap.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	MoveLeft   key.Binding
	MoveRight  key.Binding
	MoveUp     key.Binding
	MoveDown   key.Binding
	Status     key.Binding
	Connect    key.Binding
	Disconnect key.Binding
	Add        key.Binding
	Remove     key.Binding
	Undo       key.Binding
	Redo       key.Binding
	Layout     key.Binding
	Save       key.Binding
	Reload     key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns vim-style bindings with arrow-key alternatives.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "previous task")),
		Down:       key.NewBinding(key.WithKeys("j", "down", "tab"), key.WithHelp("↓/j", "next task")),
		MoveLeft:   key.NewBinding(key.WithKeys("H", "shift+left"), key.WithHelp("H", "move left")),
		MoveRight:  key.NewBinding(key.WithKeys("L", "shift+right"), key.WithHelp("L", "move right")),
		MoveUp:     key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
		MoveDown:   key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
		Status:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "cycle status")),
		Connect:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
		Add:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add task")),
		Remove:     key.NewBinding(key.WithKeys("D", "delete"), key.WithHelp("D", "remove task")),
		Undo:       key.NewBinding(key.WithKeys("u", "ctrl+z"), key.WithHelp("u", "undo")),
		Redo:       key.NewBinding(key.WithKeys("ctrl+r", "ctrl+y"), key.WithHelp("ctrl+r", "redo")),
		Layout:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "auto-layout")),
		Save:       key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		Reload:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Confirm:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Status, k.Connect, k.Undo, k.Save, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveLeft, k.MoveRight, k.MoveUp, k.MoveDown},
		{k.Status, k.Add, k.Remove, k.Connect, k.Disconnect, k.Layout},
		{k.Undo, k.Redo, k.Save, k.Reload},
		{k.Confirm, k.Cancel, k.Help, k.Quit},
	}
}
