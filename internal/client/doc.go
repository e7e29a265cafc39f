// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client talks to the docchat proxy over HTTP.
//
// Query opens a streamed answer and hands the raw body to the caller, which
// feeds it through the decoder. Upload streams local documents as a
// multipart body without buffering them in memory.
//
// Usage:
//
//	c := client.NewClientWithConfig(&client.ClientConfig{BaseURL: cfg.Client.ProxyURL})
//	body, err := c.Query(ctx, "What is in the report?")
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
package client
