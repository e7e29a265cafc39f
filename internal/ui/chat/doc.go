// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// The view never owns conversation data. It subscribes to the session and
// redraws from the latest snapshot, capped at a frame rate, so a fast stream
// of fragments costs at most one render per frame. Turns run through the
// orchestrator on a tea.Cmd goroutine.
//
// # Keys
//
//   - Enter: send the question (ignored while an answer is streaming)
//   - Esc: cancel the answer in progress
//   - Ctrl+Y: copy the last answer to the clipboard
//   - PgUp/PgDn: scroll
//   - Ctrl+C: quit
package chat
