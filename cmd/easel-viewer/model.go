// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/easel-foundation/easel/preview"
	"github.com/easel-foundation/easel/sandbox"
)

// statusMsg delivers a fresh session status to the TUI. The session's
// OnUpdate callback feeds these through program.Send.
type statusMsg preview.Status

// generateDoneMsg reports the outcome of a prompt submission.
type generateDoneMsg struct {
	err error
}

// renderModes and cameraViews are the cycles behind the m and v keys.
var renderModes = []string{sandbox.RenderSolid, sandbox.RenderWireframe, sandbox.RenderRealistic}

var cameraViews = []string{sandbox.ViewHome, sandbox.ViewFront, sandbox.ViewTop, sandbox.ViewRight, sandbox.ViewIsometric}

// model is the bubbletea model for the viewer.
type model struct {
	session *preview.Session
	keys    KeyMap
	theme   Theme

	status preview.Status

	prompt  textinput.Model
	code    viewport.Model
	spin    spinner.Model
	focused bool // prompt has focus

	renderModeIndex int
	cameraViewIndex int

	width  int
	height int
	ready  bool

	// flash is a transient message shown in the footer (submission
	// errors, export acknowledgments).
	flash string
}

func newModel(session *preview.Session) model {
	prompt := textinput.New()
	prompt.Placeholder = "describe the model to build"
	prompt.CharLimit = 500

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return model{
		session: session,
		keys:    DefaultKeyMap,
		theme:   DefaultTheme,
		prompt:  prompt,
		spin:    spin,
		status:  session.Status(),
	}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.layout()
		m.ready = true
		return m, nil

	case statusMsg:
		m.status = preview.Status(message)
		m.code.SetContent(highlightProgram(m.status.ActiveCode))
		if m.status.LastExport != nil {
			m.flash = "exported " + m.status.LastExport.Path
		}
		return m, nil

	case generateDoneMsg:
		if message.err != nil {
			m.flash = message.err.Error()
		} else {
			m.flash = ""
		}
		return m, nil

	case spinner.TickMsg:
		var command tea.Cmd
		m.spin, command = m.spin.Update(message)
		return m, command

	case tea.KeyMsg:
		if m.focused {
			return m.updatePrompt(message)
		}
		return m.updateBrowse(message)
	}

	return m, nil
}

// updatePrompt handles keys while the prompt input has focus.
func (m model) updatePrompt(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Cancel):
		m.focused = false
		m.prompt.Blur()
		return m, nil

	case message.Type == tea.KeyEnter:
		text := strings.TrimSpace(m.prompt.Value())
		if text == "" {
			return m, nil
		}
		m.prompt.SetValue("")
		m.focused = false
		m.prompt.Blur()
		m.flash = ""
		session := m.session
		return m, func() tea.Msg {
			return generateDoneMsg{err: session.Generate(context.Background(), text)}
		}
	}

	var command tea.Cmd
	m.prompt, command = m.prompt.Update(message)
	return m, command
}

// updateBrowse handles keys while the code pane has focus.
func (m model) updateBrowse(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keys
	switch {
	case key.Matches(message, keys.Quit):
		return m, tea.Quit

	case key.Matches(message, keys.Prompt):
		m.focused = true
		m.prompt.Focus()
		return m, textinput.Blink

	case key.Matches(message, keys.Undo):
		m.session.Undo()
		return m, nil

	case key.Matches(message, keys.Redo):
		m.session.Redo()
		return m, nil

	case key.Matches(message, keys.RenderMode):
		m.renderModeIndex = (m.renderModeIndex + 1) % len(renderModes)
		m.session.SetRenderMode(renderModes[m.renderModeIndex])
		return m, nil

	case key.Matches(message, keys.Grid):
		m.session.ToggleGrid()
		return m, nil

	case key.Matches(message, keys.CameraNext):
		m.cameraViewIndex = (m.cameraViewIndex + 1) % len(cameraViews)
		m.session.SetCameraView(cameraViews[m.cameraViewIndex])
		return m, nil

	case key.Matches(message, keys.Export):
		m.session.ExportModel(sandbox.FormatOBJ)
		return m, nil

	case key.Matches(message, keys.AutoRepair):
		m.session.SetAutoRepair(!m.status.AutoRepair)
		return m, nil
	}

	var command tea.Cmd
	m.code, command = m.code.Update(message)
	return m, command
}

// layout recomputes pane sizes from the window size.
func (m *model) layout() {
	sideWidth := m.width / 3
	if sideWidth > 44 {
		sideWidth = 44
	}
	codeWidth := m.width - sideWidth - 3 // border + gap
	if codeWidth < 20 {
		codeWidth = 20
	}
	bodyHeight := m.height - 5 // header, prompt, help, flash
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	m.code.Width = codeWidth
	m.code.Height = bodyHeight
	m.code.SetContent(highlightProgram(m.status.ActiveCode))
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.viewHeader()
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewCodePane(),
		" ",
		m.viewScenePane(),
	)
	footer := m.viewFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m model) viewHeader() string {
	titleStyle := lipgloss.NewStyle().Foreground(m.theme.HeaderForeground).Bold(true)
	badgeStyle := lipgloss.NewStyle().Foreground(m.theme.PhaseColor(m.status.Phase)).Bold(true)

	badge := string(m.status.Phase)
	switch m.status.Phase {
	case preview.PhaseGenerating:
		badge = m.spin.View() + badge
	case preview.PhaseRepairing:
		badge = fmt.Sprintf("%s%s %d/%d", m.spin.View(), badge, m.status.Attempts, preview.DefaultMaxAttempts)
	case preview.PhaseExhausted:
		if m.status.Reverted {
			badge += " (reverted)"
		}
	}

	repair := "auto-repair on"
	if !m.status.AutoRepair {
		repair = "auto-repair off"
	}
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	return titleStyle.Render("easel") + "  " + badgeStyle.Render(badge) + "  " + faint.Render(repair)
}

func (m model) viewCodePane() string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.BorderColor).
		Width(m.code.Width)
	if m.status.ActiveCode == "" {
		empty := lipgloss.NewStyle().Foreground(m.theme.FaintText).
			Render("no program yet; press i and describe one")
		return border.Height(m.code.Height).Render(empty)
	}
	return border.Render(m.code.View())
}

func (m model) viewScenePane() string {
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	normal := lipgloss.NewStyle().Foreground(m.theme.NormalText)

	var b strings.Builder
	b.WriteString(faint.Render("scene") + "\n")
	if len(m.status.Graph) == 0 {
		b.WriteString(faint.Render("  (empty)") + "\n")
	}
	for _, node := range m.status.Graph {
		marker := "  "
		if node.Selected {
			marker = "> "
		}
		line := fmt.Sprintf("%s%s [%s]", marker, node.Name, node.Kind)
		if !node.Visible {
			line += " (hidden)"
			b.WriteString(faint.Render(line) + "\n")
			continue
		}
		b.WriteString(normal.Render(line) + "\n")
	}

	stats := m.status.Stats
	b.WriteString("\n" + faint.Render("geometry") + "\n")
	b.WriteString(normal.Render(fmt.Sprintf("  %.1f × %.1f × %.1f", stats.Width, stats.Height, stats.Depth)) + "\n")
	b.WriteString(normal.Render(fmt.Sprintf("  %d tris", stats.Tris)) + "\n")
	if stats.Manifold != nil {
		watertight := "watertight"
		if !*stats.Manifold {
			watertight = "not watertight"
		}
		b.WriteString(normal.Render("  "+watertight) + "\n")
	}

	if len(m.status.Controls) > 0 {
		b.WriteString("\n" + faint.Render("parameters") + "\n")
		for _, control := range m.status.Controls {
			b.WriteString(normal.Render(fmt.Sprintf("  %s = %v", control.Name, control.Value)) + "\n")
		}
	}

	if m.status.LastError != nil {
		errorStyle := lipgloss.NewStyle().Foreground(m.theme.ErrorForeground)
		b.WriteString("\n" + errorStyle.Render("error: "+m.status.LastError.Message) + "\n")
		if m.status.LastError.Source != "" {
			b.WriteString(errorStyle.Render("  at "+m.status.LastError.Source) + "\n")
		}
	}

	return b.String()
}

func (m model) viewFooter() string {
	helpStyle := lipgloss.NewStyle().Foreground(m.theme.HelpText)

	promptLine := m.prompt.View()
	if !m.focused {
		promptLine = helpStyle.Render("press i to prompt")
	}

	help := helpStyle.Render("i prompt · u undo · r redo · m mode · g grid · v view · x export · a auto-repair · q quit")

	flash := ""
	if m.flash != "" {
		flash = lipgloss.NewStyle().Foreground(m.theme.ErrorForeground).Render(m.flash)
	}

	return lipgloss.JoinVertical(lipgloss.Left, promptLine, help, flash)
}
