// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the docchat command line.
//
// Commands:
//
//	docchat                    Start the terminal UI (default)
//	docchat serve              Run the proxy in front of the document backend
//	docchat ask "question"     Ask one question and stream the answer
//	docchat chat               Line-mode chat with input history
//	docchat upload FILE...     Upload documents through the proxy
//	docchat upload --watch DIR Upload documents as they appear in DIR
//
// Configuration is loaded once by the root command from
// ~/.docchat/config.toml (or --config) and handed to each command.
package cli
