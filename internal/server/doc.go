// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the docchat proxy forwarder.
//
// The proxy sits between chat front ends and the retrieval backend. It
// accepts a question, opens a POST to the backend's query endpoint and
// relays the answer back as it is produced, flushing every chunk instead of
// buffering the body.
//
// # Endpoints
//
//   - POST /api/query  - {query} or deprecated {message}; streamed answer
//   - POST /api/upload - multipart "files" relayed to the backend
//   - GET  /health     - liveness and relay counters
//
// # Error Policy
//
// Backend non-2xx responses are relayed with the same status and a JSON
// {"error": ...} body. A backend that cannot be reached yields 500 with
// {"error":"Failed to process query"}. Details go to the log only.
//
// # Key Types
//
//   - Server: HTTP server with router and middleware
//   - Forwarder: Backend relay used by the query and upload handlers
//   - RateLimiter: Per-client token buckets
//
// # Usage
//
//	srv, err := server.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
