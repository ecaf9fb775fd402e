// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the viewer TUI.
type KeyMap struct {
	// Code pane scrolling.
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	// Prompt focus.
	Prompt key.Binding
	Cancel key.Binding // Leave the prompt without submitting.

	// History.
	Undo key.Binding
	Redo key.Binding

	// Viewport commands.
	RenderMode key.Binding // Cycle solid / wireframe / realistic.
	Grid       key.Binding
	CameraNext key.Binding // Cycle through the named views.
	Export     key.Binding

	AutoRepair key.Binding
	Quit       key.Binding
}

// DefaultKeyMap is the built-in key binding set. Vim-style scrolling
// alongside arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+b"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+f"),
		key.WithHelp("pgdn", "page down"),
	),
	Prompt: key.NewBinding(
		key.WithKeys("i", "enter"),
		key.WithHelp("i", "prompt"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Undo: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "undo"),
	),
	Redo: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "redo"),
	),
	RenderMode: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "render mode"),
	),
	Grid: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "grid"),
	),
	CameraNext: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "camera view"),
	),
	Export: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "export obj"),
	),
	AutoRepair: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "auto-repair"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
