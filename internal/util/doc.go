// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the docchat packages.
//
// # Key Functions
//
//   - TruncateWidth: Display-width aware truncation for status lines
//   - ErrorMessage: Pull a human message out of a JSON error body
//   - JoinURL: Join a base URL and endpoint path without doubled slashes
//   - AtomicWrite: Crash-safe file replacement
package util
