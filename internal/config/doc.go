// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for docchat.
//
// Configuration is read once at startup and then treated as immutable; the
// CLI passes the loaded *Config down to the server, client and UI.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - BackendConfig: Where the retrieval backend lives
//   - ServerConfig: Proxy listener, CORS and rate limiting
//   - ClientConfig: Proxy URL and per-turn timeout used by the chat front ends
//   - ValidationError: One invalid field
//
// # Configuration Precedence
//
//   - Environment variables (DOCCHAT_*)
//   - ~/.docchat/config.toml (or the --config path)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Backend.URL)
package config
