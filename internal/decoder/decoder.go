// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package decoder

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// PayloadFields are the JSON fields checked for text, in priority order.
var PayloadFields = []string{"text", "content", "chunk"}

// =============================================================================
// STATS
// =============================================================================

// Stats counts what the decoder has seen. Anomalies never interrupt decoding.
type Stats struct {
	Chunks    int
	Bytes     int64
	Fragments int

	JSONChunks    int
	LiteralChunks int

	// InvalidUTF8 counts chunks that contained bytes that were not valid
	// UTF-8 and were replaced with U+FFFD.
	InvalidUTF8 int

	// MalformedJSON counts chunks that looked like JSON but did not parse.
	MalformedJSON int
}

// Anomalies returns the total number of decode anomalies.
func (s Stats) Anomalies() int {
	return s.InvalidUTF8 + s.MalformedJSON
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder converts byte chunks into text fragments. A Decoder is not safe for
// concurrent use; each stream gets its own.
//
// Transports do not keep the sender's chunk boundaries, so JSON frames may
// arrive merged or split. Consecutive JSON values are read from the front of
// the buffered text and an unfinished trailing value is held until the next
// Decode or Flush.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte
	buf     []byte
	carry   string
	framed  bool
	stats   Stats
}

// maxCarry bounds how much text is held waiting for a JSON value to close.
const maxCarry = 1 << 20

// New creates a decoder for one stream.
func New() *Decoder {
	return &Decoder{
		utf8: unicode.UTF8.NewDecoder(),
		buf:  make([]byte, 4096),
	}
}

// Decode consumes one chunk and returns the fragments it completes.
func (d *Decoder) Decode(chunk []byte) []string {
	d.stats.Chunks++
	d.stats.Bytes += int64(len(chunk))

	return d.fragments(d.decodeText(chunk))
}

// Flush signals end of stream and returns fragments for any buffered tail.
// Text held for an unfinished JSON value is emitted as is, and an incomplete
// trailing UTF-8 sequence is emitted as U+FFFD.
func (d *Decoder) Flush() []string {
	defer d.utf8.Reset()

	tail := d.carry
	d.carry = ""
	if tail != "" {
		d.noteMalformed(tail)
	}
	if len(d.pending) > 0 {
		d.pending = nil
		d.stats.InvalidUTF8++
		slog.Debug("DECODE_ANOMALY", "kind", "truncated_utf8")
		tail += string(utf8.RuneError)
	}
	if tail == "" {
		return nil
	}
	return d.literal(tail)
}

// Stats returns the counters for this stream.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// decodeText runs the UTF-8 transformer over the pending tail plus chunk.
// Bytes of an incomplete sequence at the end are kept for the next call.
func (d *Decoder) decodeText(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	rest := src
	for {
		nDst, nSrc, err := d.utf8.Transform(d.buf, rest, false)
		out.Write(d.buf[:nDst])
		rest = rest[nSrc:]

		if err == transform.ErrShortDst {
			continue
		}
		if err == transform.ErrShortSrc {
			d.pending = append([]byte(nil), rest...)
		}
		break
	}

	if consumed := src[:len(src)-len(d.pending)]; !utf8.Valid(consumed) {
		d.stats.InvalidUTF8++
		slog.Debug("DECODE_ANOMALY", "kind", "invalid_utf8", "bytes", len(consumed))
	}

	return out.String()
}

// fragments applies the JSON framing rules to newly decoded text.
func (d *Decoder) fragments(text string) []string {
	text = d.carry + text
	d.carry = ""
	if text == "" {
		return nil
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Separators between frames carry no answer text.
		if d.framed {
			return nil
		}
		return d.literal(text)
	}
	if trimmed[0] != '{' {
		return d.literal(text)
	}

	frames, rest, ok := d.extractJSON(text)
	if !ok {
		return d.literal(text)
	}
	if len(rest) > maxCarry {
		d.noteMalformed(rest)
		return append(d.framePayloads(frames), d.literal(rest)...)
	}
	d.carry = rest
	return d.framePayloads(frames)
}

func (d *Decoder) framePayloads(frames []string) []string {
	if len(frames) == 0 {
		return nil
	}
	d.framed = true
	d.stats.JSONChunks++
	return d.emit(frames)
}

// extractJSON reads consecutive JSON objects from text and returns their
// payloads. rest is an unfinished trailing value. ok is false when text is
// not a run of payload-carrying objects.
func (d *Decoder) extractJSON(text string) (frames []string, rest string, ok bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	var offset int64
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		switch {
		case err == io.EOF:
			return frames, "", true
		case errors.Is(err, io.ErrUnexpectedEOF):
			return frames, text[offset:], true
		case err != nil:
			d.noteMalformed(text[offset:])
			return nil, "", false
		}

		p, found := payload(gjson.ParseBytes(raw))
		if !found {
			return nil, "", false
		}
		frames = append(frames, p)
		offset = dec.InputOffset()
	}
}

// literal emits text unchanged as one fragment.
func (d *Decoder) literal(text string) []string {
	d.stats.LiteralChunks++
	return d.emit([]string{text})
}

// emit drops empty fragments and counts the rest.
func (d *Decoder) emit(frags []string) []string {
	var out []string
	for _, f := range frags {
		if f != "" {
			out = append(out, f)
		}
	}
	d.stats.Fragments += len(out)
	return out
}

func (d *Decoder) noteMalformed(s string) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return
	}
	d.stats.MalformedJSON++
	slog.Debug("DECODE_ANOMALY", "kind", "malformed_json", "length", len(s))
}

// payload returns the first non-empty string payload field of an object.
// found reports whether the object has any string payload field at all.
func payload(r gjson.Result) (p string, found bool) {
	if !r.IsObject() {
		return "", false
	}
	for _, field := range PayloadFields {
		v := r.Get(field)
		if v.Type != gjson.String {
			continue
		}
		found = true
		if v.Str != "" {
			return v.Str, true
		}
	}
	return "", found
}
