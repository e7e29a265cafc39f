// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the state of one chat session.
//
// A State owns the ordered chat log and at most one in-flight assistant
// message. It is the single source of truth for rendering: every mutation
// produces a Snapshot that is delivered to subscribers after the write
// completes.
//
// # Key Types
//
//   - State: Chat log plus in-flight slot, with change subscriptions
//   - Snapshot: Immutable copy of the transcript at one version
//
// # Usage
//
//	st := session.New()
//	cancel := st.Subscribe(func(s session.Snapshot) {
//	    render(s.Transcript())
//	})
//	defer cancel()
//
//	st.AppendMessage(model.RoleUser, "Hello")
//	if err := st.BeginAssistantTurn(); err != nil {
//	    // a turn is already active
//	}
//	st.AppendToInFlight("Hi")
//	st.CommitInFlight()
//
// # Errors
//
// ErrInvalidState marks a contract violation by the caller: beginning a
// turn while one is active, or touching the in-flight slot when it is empty.
package session
