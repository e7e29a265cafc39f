// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages.
//
// These are plain values shared by the session state, the stream
// orchestrator and the renderers. They carry no behavior beyond
// formatting helpers.
//
// # Key Types
//
//   - Role: Message role enumeration (user, assistant)
//   - Message: A committed chat message; immutable once in the log
//   - Entry: One line of a rendered transcript, possibly partial
//
// # Usage
//
//	msg := model.NewMessage(model.RoleUser, "What is the capital of France?")
//	fmt.Println(msg.Role.DisplayName(), msg.Content)
package model
