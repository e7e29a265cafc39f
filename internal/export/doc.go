// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the committed transcript of a chat session to a
// file on request.
//
// # Supported Formats
//
//   - Markdown: human-readable, one heading per message
//   - JSON: machine-readable, messages with roles
//
// # Usage
//
//	tr := export.FromSession(sess, proxyURL)
//	path, err := export.WriteFile(tr, "notes.md", export.DefaultOptions())
//
// The format is picked from the file extension. Nothing is ever read back;
// a new session always starts empty.
package export
