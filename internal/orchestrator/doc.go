// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator drives one chat turn at a time: it sends the user's
// question, feeds the streamed answer through the decoder into the session's
// in-flight message, and commits or discards it when the stream ends.
//
// A turn moves through Idle, Sending, Streaming, Finalizing and back to
// Idle. Any transport error, non-2xx answer or timeout takes the Failed
// branch instead, which replaces the partial answer with ErrorNotice.
package orchestrator
