// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the chat UI.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	NoColor      bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderInfo  lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Body           lipgloss.Style
	Partial        lipgloss.Style
	Notice         lipgloss.Style
	Separator      lipgloss.Style

	// Status bar
	StatusBar     lipgloss.Style
	StatusIdle    lipgloss.Style
	StatusBusy    lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusMessage lipgloss.Style
	ShortcutKey   lipgloss.Style
	ShortcutDesc  lipgloss.Style

	// Input
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
}

// NewTheme creates a theme for the current terminal. With noColor every
// style renders without color codes.
func NewTheme(noColor bool) *Theme {
	profile := termenv.ColorProfile()
	if noColor {
		profile = termenv.Ascii
	}

	t := &Theme{
		IsDark:       noColor || termenv.HasDarkBackground(),
		NoColor:      noColor,
		ColorProfile: profile,
	}
	if noColor {
		t.initPlain()
	} else {
		t.initStyles()
	}
	return t
}

// initStyles initializes the colored styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderInfo = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Body = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Partial = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Notice = lipgloss.NewStyle().Foreground(Rose).PaddingLeft(2)
	t.Separator = lipgloss.NewStyle().Foreground(Overlay)

	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(SurfaceDim)
	t.StatusIdle = lipgloss.NewStyle().Bold(true).Foreground(Emerald)
	t.StatusBusy = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.StatusFailed = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.StatusMessage = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.ShortcutKey = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)

	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.InputPlaceholder = lipgloss.NewStyle().Foreground(TextMuted)
}

// initPlain sets styles that only use layout and text attributes.
func (t *Theme) initPlain() {
	plain := lipgloss.NewStyle()
	indented := plain.PaddingLeft(2)

	t.Header = plain.Bold(true)
	t.HeaderTitle = plain.Bold(true)
	t.HeaderInfo = plain

	t.UserLabel = plain.Bold(true)
	t.AssistantLabel = plain.Bold(true)
	t.Body = indented
	t.Partial = indented
	t.Notice = indented
	t.Separator = plain

	t.StatusBar = plain
	t.StatusIdle = plain
	t.StatusBusy = plain
	t.StatusFailed = plain
	t.StatusMessage = plain
	t.ShortcutKey = plain.Bold(true)
	t.ShortcutDesc = plain

	t.InputPrompt = plain
	t.InputPlaceholder = plain
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GlamourStyle names the glamour standard style matching the terminal.
func (t *Theme) GlamourStyle() string {
	switch {
	case t.NoColor:
		return "notty"
	case t.IsDark:
		return "dark"
	default:
		return "light"
	}
}

// Indicator returns text prefixed with its status marker.
func Indicator(marker, text string) string {
	return marker + " " + text
}
