// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/session"
)

// bridge turns session and orchestrator callbacks into tea messages.
// Snapshots coalesce: a slow reader only ever sees the newest one. State
// changes are queued so none is lost.
//
// It must be used as a pointer so Bubble Tea model copies share it.
type bridge struct {
	snapshots chan session.Snapshot
	states    chan orchestrator.State

	closeOnce   sync.Once
	done        chan struct{}
	unsubscribe func()
}

func newBridge(sess *session.State, orch *orchestrator.Orchestrator) *bridge {
	b := &bridge{
		snapshots: make(chan session.Snapshot, 1),
		states:    make(chan orchestrator.State, 16),
		done:      make(chan struct{}),
	}
	b.unsubscribe = sess.Subscribe(b.pushSnapshot)
	orch.OnStateChange(b.pushState)
	return b
}

// pushSnapshot replaces any unread snapshot with s.
func (b *bridge) pushSnapshot(s session.Snapshot) {
	for {
		select {
		case <-b.done:
			return
		case b.snapshots <- s:
			return
		default:
		}
		select {
		case <-b.snapshots:
		default:
		}
	}
}

func (b *bridge) pushState(s orchestrator.State) {
	select {
	case <-b.done:
	case b.states <- s:
	}
}

// close stops delivery. Callbacks arriving later return immediately.
func (b *bridge) close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.unsubscribe()
	})
}

// waitForSnapshot blocks until the next snapshot.
func (b *bridge) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-b.snapshots:
			return SnapshotMsg{Snapshot: s}
		case <-b.done:
			return bridgeClosedMsg{}
		}
	}
}

// waitForState blocks until the next state change.
func (b *bridge) waitForState() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-b.states:
			return StateMsg{State: s}
		case <-b.done:
			return bridgeClosedMsg{}
		}
	}
}
