// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/ui/chat"
	"github.com/jeranaias/docchat/internal/ui/styles"
)

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the terminal chat UI (default)",
		Long: `Start the full-screen chat UI.

Keys:
  Enter   send the question
  Esc     stop the answer that is streaming
  Ctrl+Y  copy the last answer
  PgUp/PgDn scroll
  Ctrl+C  quit

When stdin or stdout is not a terminal, line-mode chat is used instead.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOwnsTerminal: "true"},
		RunE:        a.runTUI,
	}
}

func (a *app) runTUI(cmd *cobra.Command, _ []string) error {
	if !IsTTY() || !IsStdoutTTY() {
		slog.Debug("TUI_FALLBACK_LINE_MODE")
		return a.runChat(cmd)
	}

	orch := a.newOrchestrator()
	m := chat.New(orch, styles.NewTheme(!a.colors), chat.Options{
		Title:    a.cfg.Client.ProxyURL,
		MaxFPS:   a.cfg.UI.MaxFPS,
		WordWrap: a.cfg.UI.WordWrap,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}
