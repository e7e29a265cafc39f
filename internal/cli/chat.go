// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/export"
	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/ui/styles"
	"github.com/jeranaias/docchat/internal/util"
)

// =============================================================================
// LINE INPUT WITH HISTORY
// =============================================================================

// promptReader reads one line of input.
type promptReader interface {
	Prompt(prompt string) (string, error)
}

// lineReader provides input history and line editing for the chat REPL.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	r := &lineReader{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}

	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// Prompt reads a line and records non-empty input in the history.
func (r *lineReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the
// terminal.
func (r *lineReader) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		err := util.AtomicWrite(r.historyFile, 0600, func(w io.Writer) error {
			_, err := r.line.WriteHistory(w)
			return err
		})
		if err != nil {
			slog.Warn("CHAT_HISTORY_SAVE_FAILED", "file", r.historyFile, "error", err)
		}
	}
	r.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Line-mode chat with input history",
		Long: `Chat in plain lines, for terminals where the full UI is not wanted.

Answers are printed as they stream. Ctrl+C while an answer is streaming
stops it; Ctrl+C or Ctrl+D at the prompt exits.

Commands:
  /copy        Copy the last answer to the clipboard
  /transcript  Show the conversation so far
  /export FILE Save the conversation as Markdown (.md) or JSON (.json)
  /help        Show this help
  /exit        Leave (also: exit, quit)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd)
		},
	}
}

func (a *app) runChat(cmd *cobra.Command) error {
	reader := newLineReader()
	defer reader.Close()

	s := &chatREPL{
		orch:   a.newOrchestrator(),
		source: a.cfg.Client.ProxyURL,
		in:     reader,
		copy:   clipboard.WriteAll,
		theme:  styles.NewTheme(!a.colors),
		out:    cmd.OutOrStdout(),
		err:    cmd.ErrOrStderr(),
	}
	fmt.Fprintf(s.out, "%s %s\n", promptStyle.Render("docchat"),
		mutedStyle.Render("connected to "+a.cfg.Client.ProxyURL+" - /help for commands"))
	return s.run(cmd.Context())
}

// chatREPL runs the read-submit-print loop.
type chatREPL struct {
	orch   *orchestrator.Orchestrator
	source string
	in     promptReader
	copy   func(string) error
	theme  *styles.Theme
	out    io.Writer
	err    io.Writer
}

func (s *chatREPL) run(ctx context.Context) error {
	for {
		input, err := s.in.Prompt("> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or end of piped input.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return err
			}
			fmt.Fprintln(s.out)
			return nil
		}

		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
			return nil
		case strings.HasPrefix(input, "/"):
			if !s.command(input) {
				return nil
			}
			continue
		}

		err = runTurn(ctx, s.orch, input, turnOutput{out: s.out, errOut: s.err, theme: s.theme})
		switch {
		case err == nil, errors.Is(err, errReported):
		case errors.Is(err, context.Canceled):
			if ctx.Err() != nil {
				return nil
			}
		default:
			fmt.Fprintln(s.err, errorStyle.Render("Error: ")+err.Error())
		}
	}
}

// command handles a slash command and reports whether to keep going.
func (s *chatREPL) command(input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/exit", "/quit", "/q":
		return false

	case "/help", "/h", "/?":
		fmt.Fprintln(s.out, "  /copy        Copy the last answer to the clipboard")
		fmt.Fprintln(s.out, "  /transcript  Show the conversation so far")
		fmt.Fprintln(s.out, "  /export FILE Save the conversation as Markdown or JSON")
		fmt.Fprintln(s.out, "  /exit        Leave")

	case "/copy":
		answer, ok := s.orch.Session().Snapshot().LastAssistant()
		if !ok || answer == orchestrator.ErrorNotice {
			fmt.Fprintln(s.err, mutedStyle.Render("No answer to copy"))
			break
		}
		if err := s.copy(answer); err != nil {
			fmt.Fprintln(s.err, errorStyle.Render("Copy failed: ")+err.Error())
			break
		}
		fmt.Fprintln(s.out, successStyle.Render(fmt.Sprintf("Copied answer (%d chars)", len([]rune(answer)))))

	case "/transcript":
		s.printTranscript()

	case "/export":
		if arg == "" {
			fmt.Fprintln(s.err, errorStyle.Render("Usage: /export FILE"))
			break
		}
		path, err := export.WriteFile(export.FromSession(s.orch.Session(), s.source), arg, export.DefaultOptions())
		if err != nil {
			fmt.Fprintln(s.err, errorStyle.Render("Export failed: ")+err.Error())
			break
		}
		fmt.Fprintln(s.out, successStyle.Render("Saved "+path))

	default:
		fmt.Fprintf(s.err, "%s %s (try /help)\n", errorStyle.Render("Unknown command:"), name)
	}
	return true
}

func (s *chatREPL) printTranscript() {
	msgs := s.orch.Session().Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(s.out, mutedStyle.Render("No messages yet"))
		return
	}
	for _, m := range msgs {
		label := m.Role.DisplayName()
		if m.Role == model.RoleUser {
			label = promptStyle.Render(label)
		}
		fmt.Fprintf(s.out, "%s: %s\n", label, m.Content)
	}
}
