// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/easel-foundation/easel/preview"
)

// Theme defines the viewer's color palette. ANSI 256-color codes for
// broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Phase badge colors.
	PhaseIdle       lipgloss.Color
	PhaseGenerating lipgloss.Color
	PhaseRunning    lipgloss.Color
	PhaseRepairing  lipgloss.Color
	PhaseExhausted  lipgloss.Color

	ErrorForeground lipgloss.Color
	GoodForeground  lipgloss.Color
}

// DefaultTheme is the built-in palette.
var DefaultTheme = Theme{
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("243"),
	HeaderForeground: lipgloss.Color("81"),
	BorderColor:      lipgloss.Color("238"),
	HelpText:         lipgloss.Color("241"),
	PhaseIdle:        lipgloss.Color("243"),
	PhaseGenerating:  lipgloss.Color("214"),
	PhaseRunning:     lipgloss.Color("78"),
	PhaseRepairing:   lipgloss.Color("208"),
	PhaseExhausted:   lipgloss.Color("196"),
	ErrorForeground:  lipgloss.Color("203"),
	GoodForeground:   lipgloss.Color("78"),
}

// PhaseColor returns the badge color for a repair loop phase.
func (theme Theme) PhaseColor(phase preview.Phase) lipgloss.Color {
	switch phase {
	case preview.PhaseGenerating:
		return theme.PhaseGenerating
	case preview.PhaseRunning:
		return theme.PhaseRunning
	case preview.PhaseRepairing:
		return theme.PhaseRepairing
	case preview.PhaseExhausted:
		return theme.PhaseExhausted
	default:
		return theme.PhaseIdle
	}
}
