// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/ui/styles"
)

// maxStdinQuestion bounds a question piped on stdin.
const maxStdinQuestion = 64 << 10

func newAskCmd(a *app) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and stream the answer",
		Long: `Ask a single question about the uploaded documents.

The answer is printed as it arrives. With no arguments the question is
read from stdin. The exit status is 1 if the answer could not be
produced.`,
		Example: `  $ docchat ask "Summarize the Q3 report"
  $ echo "Who signed the lease?" | docchat ask
  $ docchat ask --markdown "List the action items"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if question == "" && !IsTTY() {
				raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxStdinQuestion))
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
				question = string(raw)
			}
			if strings.TrimSpace(question) == "" {
				return errors.New("no question given")
			}

			return runTurn(cmd.Context(), a.newOrchestrator(), question, turnOutput{
				out:      cmd.OutOrStdout(),
				errOut:   cmd.ErrOrStderr(),
				markdown: markdown && isTerminalWriter(cmd.OutOrStdout()),
				theme:    styles.NewTheme(!a.colors),
				width:    a.wrapWidth(),
			})
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "render the finished answer as markdown instead of streaming it")
	return cmd
}
