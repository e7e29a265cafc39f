// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package decoder turns a chunked response body into text fragments.
//
// Backends deliver answers either as plain UTF-8 text or as one JSON object
// per chunk (or per line) carrying the text in a "text", "content" or
// "chunk" field. A Decoder accepts raw chunks in arrival order and returns
// the fragments they contain; concatenating every fragment in call order
// reconstructs the message.
//
// Multi-byte UTF-8 sequences split across chunk boundaries are held back
// until the rest of the sequence arrives. Decoding never fails: anything
// that does not look like a JSON payload is passed through as literal text.
//
// # Usage
//
//	dec := decoder.New()
//	for chunk := range chunks {
//	    for _, frag := range dec.Decode(chunk) {
//	        fmt.Print(frag)
//	    }
//	}
//	for _, frag := range dec.Flush() {
//	    fmt.Print(frag)
//	}
package decoder
