// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/client"
	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/logger"
	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/session"
	"github.com/jeranaias/docchat/internal/ui/styles"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// annotationOwnsTerminal marks commands that draw on the whole terminal.
// Their logs go to a file unless one is configured.
const annotationOwnsTerminal = "owns-terminal"

// errReported is returned by commands that already told the user what went
// wrong. Execute only sets the exit code for it.
var errReported = errors.New("reported")

var (
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose)
	successStyle = lipgloss.NewStyle().Foreground(styles.Emerald)
	mutedStyle   = lipgloss.NewStyle().Foreground(styles.TextMuted)
	promptStyle  = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
)

// app carries state shared by every command once the root has loaded it.
type app struct {
	configPath string
	logLevel   string
	noColor    bool

	cfg       *config.Config
	colors    bool
	logCloser io.Closer
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("Error: ")+err.Error())
		}
		return 1
	}
	return 0
}

// NewRootCmd builds the docchat command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "docchat",
		Short:   "Chat with your documents from the terminal",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Long: `docchat talks to a document question-answering backend.

It runs a small proxy in front of the backend and offers a terminal UI,
a line-mode chat and one-shot questions against that proxy. Answers are
shown while they stream in.`,
		Example: `  # Start the proxy
  $ docchat serve

  # Open the chat UI
  $ docchat

  # Ask a single question
  $ docchat ask "What does the contract say about renewal?"

  # Upload documents
  $ docchat upload report.pdf minutes.pdf`,
		Args:               cobra.NoArgs,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Annotations:        map[string]string{annotationOwnsTerminal: "true"},
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
		RunE:               a.runTUI,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.docchat/config.toml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newServeCmd(a),
		newAskCmd(a),
		newChatCmd(a),
		newUploadCmd(a),
		newTUICmd(a),
	)
	return root
}

// setup loads the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.noColor {
		cfg.UI.NoColor = true
	}

	logFile := cfg.Log.File
	if logFile == "" && cmd.Annotations[annotationOwnsTerminal] != "" && IsTTY() {
		if dir, err := config.ConfigDir(); err == nil {
			logFile = filepath.Join(dir, "docchat.log")
		}
	}

	a.cfg = cfg
	a.colors = applyColorProfile(cfg.UI.NoColor)
	a.logCloser = logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   logFile,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.logCloser != nil {
		return a.logCloser.Close()
	}
	return nil
}

// =============================================================================
// SHARED CONSTRUCTION
// =============================================================================

// newClient builds a proxy client from the client section of the config.
func (a *app) newClient() *client.Client {
	return client.NewClientWithConfig(&client.ClientConfig{
		BaseURL:        a.cfg.Client.ProxyURL,
		ConnectTimeout: a.cfg.Client.ConnectTimeout,
		RequestTimeout: a.cfg.Client.RequestTimeout,
	})
}

// newOrchestrator wires a fresh session to the proxy.
func (a *app) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(session.New(), a.newClient(), orchestrator.Options{
		TurnTimeout: a.cfg.Client.TurnTimeout,
	})
}

// wrapWidth is the terminal width capped by ui.word_wrap.
func (a *app) wrapWidth() int {
	width := GetTerminalWidth()
	if ww := a.cfg.UI.WordWrap; ww > 0 && ww < width {
		return ww
	}
	return width
}
