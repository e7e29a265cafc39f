// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/session"
	"github.com/jeranaias/docchat/internal/ui/styles"
)

// =============================================================================
// RENDER THROTTLE
// =============================================================================

// renderThrottle caps transcript renders at maxFPS. Snapshots arriving
// faster than that are folded into the next frame.
type renderThrottle struct {
	interval    time.Duration
	lastRender  time.Time
	dirty       bool
	tickPending bool
}

func newRenderThrottle(maxFPS int) renderThrottle {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = 30
	}
	return renderThrottle{interval: time.Second / time.Duration(maxFPS)}
}

// mark records new content. It returns true when a render may happen now;
// otherwise it returns a tick command for the next frame, or nil when a
// tick is already scheduled.
func (t *renderThrottle) mark(now time.Time) (bool, tea.Cmd) {
	t.dirty = true
	wait := t.interval - now.Sub(t.lastRender)
	if wait <= 0 {
		return true, nil
	}
	if t.tickPending {
		return false, nil
	}
	t.tickPending = true
	return false, tea.Tick(wait, func(at time.Time) tea.Msg {
		return RenderTickMsg{Time: at}
	})
}

// tick consumes a RenderTickMsg and reports whether content is waiting.
func (t *renderThrottle) tick() bool {
	t.tickPending = false
	return t.dirty
}

func (t *renderThrottle) rendered(now time.Time) {
	t.lastRender = now
	t.dirty = false
}

// =============================================================================
// TRANSCRIPT RENDERER
// =============================================================================

// transcriptRenderer draws a snapshot. Committed messages never change, so
// their markdown is rendered once and cached by position.
type transcriptRenderer struct {
	theme *styles.Theme
	width int
	md    *glamour.TermRenderer
	cache map[int]string
}

func newTranscriptRenderer(theme *styles.Theme, width int) *transcriptRenderer {
	r := &transcriptRenderer{theme: theme}
	r.setWidth(width)
	return r
}

// setWidth rebuilds the markdown renderer and drops the cache when the
// wrap width changes.
func (r *transcriptRenderer) setWidth(width int) {
	if width < 20 {
		width = 20
	}
	if width == r.width && r.md != nil {
		return
	}
	r.width = width
	r.cache = make(map[int]string)

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.theme.GlamourStyle()),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		slog.Warn("MARKDOWN_RENDERER_UNAVAILABLE", "error", err)
		md = nil
	}
	r.md = md
}

// render draws the full transcript.
func (r *transcriptRenderer) render(snap session.Snapshot) string {
	if len(snap.Messages) == 0 && !snap.HasInFlight {
		return r.theme.HeaderInfo.Render("Ask a question about your uploaded documents.")
	}

	var b strings.Builder
	for i, msg := range snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.label(msg.Role))
		b.WriteByte('\n')
		b.WriteString(r.committed(i, msg))
	}

	if snap.HasInFlight {
		if len(snap.Messages) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.label(model.RoleAssistant))
		b.WriteByte('\n')
		b.WriteString(r.partial(snap.InFlight))
	}
	return b.String()
}

func (r *transcriptRenderer) label(role model.Role) string {
	if role == model.RoleUser {
		return r.theme.UserLabel.Render(role.DisplayName())
	}
	return r.theme.AssistantLabel.Render(role.DisplayName())
}

func (r *transcriptRenderer) committed(i int, msg model.Message) string {
	if out, ok := r.cache[i]; ok {
		return out
	}

	var out string
	switch {
	case msg.Role == model.RoleAssistant && msg.Content == orchestrator.ErrorNotice:
		out = r.theme.Notice.Render(styles.Indicator(styles.StatusIndicators.Error, msg.Content))
	case msg.Role == model.RoleAssistant:
		out = r.markdown(msg.Content)
	default:
		out = r.wrap(r.theme.Body, msg.Content)
	}

	r.cache[i] = out
	return out
}

// partial draws the in-flight answer as plain wrapped text. Markdown is
// only applied once the answer is committed, so half-written constructs
// do not flicker.
func (r *transcriptRenderer) partial(text string) string {
	if text == "" {
		return r.theme.Partial.Render("…")
	}
	return r.wrap(r.theme.Partial, text+"▍")
}

func (r *transcriptRenderer) markdown(text string) string {
	if r.md == nil {
		return r.wrap(r.theme.Body, text)
	}
	out, err := r.md.Render(text)
	if err != nil {
		return r.wrap(r.theme.Body, text)
	}
	return strings.Trim(out, "\n")
}

func (r *transcriptRenderer) wrap(style lipgloss.Style, text string) string {
	return style.Width(r.width).Render(text)
}
