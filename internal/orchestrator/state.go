// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

// State is the orchestrator's position in the turn lifecycle.
type State int32

const (
	Idle State = iota
	Sending
	Streaming
	Finalizing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Finalizing:
		return "finalizing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is running.
func (s State) Busy() bool {
	return s != Idle
}
