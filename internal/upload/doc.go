// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload picks the local documents to send to the backend and can
// watch a folder, uploading new documents as they appear.
package upload
