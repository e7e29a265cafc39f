// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/docchat/internal/orchestrator"
	"github.com/jeranaias/docchat/internal/session"
)

// SnapshotMsg carries the latest session snapshot.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// StateMsg reports an orchestrator transition.
type StateMsg struct {
	State orchestrator.State
}

// TurnDoneMsg is sent when Submit returns.
type TurnDoneMsg struct {
	Err error
}

// RenderTickMsg fires when a throttled render is due.
type RenderTickMsg struct {
	Time time.Time
}

// CopiedMsg reports the outcome of a clipboard copy.
type CopiedMsg struct {
	Chars int
	Err   error
}

// bridgeClosedMsg is returned by a wait command after the bridge closed.
type bridgeClosedMsg struct{}
