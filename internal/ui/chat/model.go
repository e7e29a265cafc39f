// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/session"
	"github.com/jeranaias/docchat/internal/ui/styles"
	"github.com/jeranaias/docchat/internal/util"
)

// Options configures the chat view.
type Options struct {
	// Title is shown in the header, usually the proxy URL.
	Title string

	// MaxFPS caps transcript redraws while an answer streams.
	MaxFPS int

	// WordWrap caps the transcript width. Zero uses the terminal width.
	WordWrap int

	// CopyFunc replaces the system clipboard, mainly for tests.
	CopyFunc func(string) error
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	orch   *orchestrator.Orchestrator
	sess   *session.State
	bridge *bridge

	// ctx is cancelled on quit so a running turn is abandoned.
	ctx    context.Context
	cancel context.CancelFunc

	theme    *styles.Theme
	keyMap   KeyMap
	renderer *transcriptRenderer
	throttle renderThrottle

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	snap      session.Snapshot
	state     orchestrator.State
	statusMsg string

	title    string
	wordWrap int
	copyFn   func(string) error

	width  int
	height int
	ready  bool
}

// New creates the chat view for orch. The view subscribes to the
// orchestrator's session; call Close (or quit the program) to detach.
func New(orch *orchestrator.Orchestrator, theme *styles.Theme, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.Placeholder = "Ask about your documents..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.StatusBusy

	copyFn := opts.CopyFunc
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := orch.Session()

	return Model{
		orch:     orch,
		sess:     sess,
		bridge:   newBridge(sess, orch),
		ctx:      ctx,
		cancel:   cancel,
		theme:    theme,
		keyMap:   DefaultKeyMap(),
		renderer: newTranscriptRenderer(theme, 80),
		throttle: newRenderThrottle(opts.MaxFPS),
		viewport: vp,
		input:    ti,
		spinner:  sp,
		snap:     sess.Snapshot(),
		state:    orch.State(),
		title:    opts.Title,
		wordWrap: opts.WordWrap,
		copyFn:   copyFn,
	}
}

// Close detaches from the session and abandons a running turn.
func (m Model) Close() {
	m.cancel()
	m.bridge.close()
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts listening for session and state updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.bridge.waitForSnapshot(),
		m.bridge.waitForState(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		m.snap = msg.Snapshot
		now := time.Now()
		renderNow, tick := m.throttle.mark(now)
		if renderNow {
			m.refresh(now)
		}
		return m, tea.Batch(tick, m.bridge.waitForSnapshot())

	case RenderTickMsg:
		if m.throttle.tick() {
			m.refresh(msg.Time)
		}
		return m, nil

	case StateMsg:
		wasBusy := m.state.Busy()
		m.state = msg.State
		cmds := []tea.Cmd{m.bridge.waitForState(), m.syncInput()}
		if !wasBusy && m.state.Busy() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case TurnDoneMsg:
		return m.handleTurnDone(msg)

	case CopiedMsg:
		if msg.Err != nil {
			m.statusMsg = "Copy failed: " + msg.Err.Error()
		} else {
			m.statusMsg = fmt.Sprintf("Copied answer (%d chars)", msg.Chars)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.state.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bridgeClosedMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// header + status bar + input
	chrome := 3
	m.viewport.Width = msg.Width
	m.viewport.Height = max(msg.Height-chrome, 1)
	m.input.Width = max(msg.Width-4, 10)

	wrap := msg.Width - 2
	if m.wordWrap > 0 && m.wordWrap < wrap {
		wrap = m.wordWrap
	}
	m.renderer.setWidth(wrap)
	m.ready = true
	m.refresh(time.Now())
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Cancel):
		if m.orch.Cancel() {
			m.statusMsg = "Answer cancelled"
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Copy):
		return m.copyLastAnswer()

	case key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands the input to the orchestrator. Text submitted while a turn
// is running stays in the input.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if m.state.Busy() || m.orch.State().Busy() {
		m.statusMsg = "Wait for the current answer, or press Esc to stop it"
		return m, nil
	}

	m.input.Reset()
	m.input.Blur()
	m.statusMsg = ""

	orch, ctx := m.orch, m.ctx
	turn := func() tea.Msg {
		return TurnDoneMsg{Err: orch.Submit(ctx, text)}
	}
	return m, turn
}

func (m Model) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	m.state = m.orch.State()
	switch {
	case msg.Err == nil:
	case errors.Is(msg.Err, context.Canceled):
		m.statusMsg = "Answer cancelled"
	case errors.Is(msg.Err, orchestrator.ErrTurnInProgress):
		m.statusMsg = "Wait for the current answer, or press Esc to stop it"
	}
	m.snap = m.sess.Snapshot()
	m.refresh(time.Now())
	return m, m.syncInput()
}

// syncInput disables typing while a turn is running.
func (m *Model) syncInput() tea.Cmd {
	if m.state.Busy() {
		m.input.Blur()
		return nil
	}
	if m.input.Focused() {
		return nil
	}
	return m.input.Focus()
}

func (m Model) copyLastAnswer() (tea.Model, tea.Cmd) {
	answer, ok := m.snap.LastAssistant()
	if !ok || answer == "" || answer == orchestrator.ErrorNotice {
		m.statusMsg = "No answer to copy"
		return m, nil
	}
	copyFn := m.copyFn
	return m, func() tea.Msg {
		return CopiedMsg{Chars: len([]rune(answer)), Err: copyFn(answer)}
	}
}

// refresh redraws the transcript into the viewport, following the bottom
// only if the user had not scrolled away.
func (m *Model) refresh(now time.Time) {
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderer.render(m.snap))
	if follow {
		m.viewport.GotoBottom()
	}
	m.throttle.rendered(now)
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.input.View(),
	)
}

func (m Model) headerView() string {
	title := m.theme.HeaderTitle.Render("docchat")
	if m.title != "" {
		title += " " + m.theme.HeaderInfo.Render(util.TruncateWidth(m.title, max(m.width-12, 8)))
	}
	return m.theme.Header.Width(m.width).Render(title)
}

func (m Model) statusView() string {
	var state string
	switch {
	case m.state == orchestrator.Failed:
		state = m.theme.StatusFailed.Render(styles.Indicator(styles.StatusIndicators.Error, m.state.String()))
	case m.state.Busy():
		state = m.theme.StatusBusy.Render(m.spinner.View() + " " + m.state.String())
	default:
		state = m.theme.StatusIdle.Render(styles.Indicator(styles.StatusIndicators.Active, m.state.String()))
	}

	var detail string
	switch {
	case m.statusMsg != "":
		detail = m.theme.StatusMessage.Render(util.TruncateWidth(m.statusMsg, max(m.width-20, 10)))
	default:
		var hints []string
		for _, b := range m.keyMap.ShortHelp() {
			h := b.Help()
			hints = append(hints, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
		}
		detail = strings.Join(hints, "  ")
	}
	return m.theme.StatusBar.Width(m.width).Render(state + "  " + detail)
}
