// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/session"
	"github.com/jeranaias/docchat/internal/ui/styles"
	"github.com/jeranaias/docchat/internal/util"
)

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the growth of the in-flight answer to w. Session
// observers run on the submitting goroutine, so no locking is needed.
type streamPrinter struct {
	w       io.Writer
	printed int
	wrote   bool
	lastNL  bool
}

func (p *streamPrinter) observe(s session.Snapshot) {
	if !s.HasInFlight {
		p.printed = 0
		return
	}
	if len(s.InFlight) <= p.printed {
		return
	}
	delta := s.InFlight[p.printed:]
	p.printed = len(s.InFlight)
	io.WriteString(p.w, delta)
	p.wrote = true
	p.lastNL = strings.HasSuffix(delta, "\n")
}

// finish ends the answer on its own line.
func (p *streamPrinter) finish() {
	if p.wrote && !p.lastNL {
		io.WriteString(p.w, "\n")
	}
	p.wrote, p.lastNL = false, false
}

// =============================================================================
// TURN RUNNER
// =============================================================================

// turnOutput says where a turn's answer and notices go.
type turnOutput struct {
	out    io.Writer
	errOut io.Writer

	// markdown renders the committed answer instead of streaming it.
	markdown bool
	theme    *styles.Theme
	width    int
}

// runTurn submits text and prints the answer as it streams. An interrupt
// cancels the turn. A failed turn prints the notice and returns
// errReported.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, text string, o turnOutput) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	printer := &streamPrinter{w: o.out}
	if o.markdown {
		printer.w = io.Discard
	}
	unsubscribe := orch.Session().Subscribe(printer.observe)
	defer unsubscribe()

	err := orch.Submit(ctx, text)
	printer.finish()

	switch {
	case err == nil:
		if o.markdown {
			answer, _ := orch.Session().Snapshot().LastAssistant()
			io.WriteString(o.out, renderMarkdown(answer, o.theme, o.width))
		}
		return nil

	case errors.Is(err, context.Canceled):
		fmt.Fprintln(o.errOut, mutedStyle.Render("[Cancelled]"))
		return err

	case errors.Is(err, orchestrator.ErrTurnFailed):
		fmt.Fprintln(o.errOut, errorStyle.Render(styles.Indicator(styles.StatusIndicators.Error, orchestrator.ErrorNotice)))
		return errReported

	default:
		return err
	}
}

// renderMarkdown renders content for the terminal. It returns content
// unchanged if no renderer can be built.
func renderMarkdown(content string, theme *styles.Theme, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return util.EnsureNewline(content)
	}
	out, err := r.Render(content)
	if err != nil {
		return util.EnsureNewline(content)
	}
	return out
}
