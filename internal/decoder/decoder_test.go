// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package decoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeAll feeds chunks through a fresh decoder and joins the fragments.
func decodeAll(t *testing.T, chunks ...[]byte) (string, Stats) {
	t.Helper()
	d := New()
	var sb strings.Builder
	for _, c := range chunks {
		for _, f := range d.Decode(c) {
			sb.WriteString(f)
		}
	}
	for _, f := range d.Flush() {
		sb.WriteString(f)
	}
	return sb.String(), d.Stats()
}

func TestDecodePlainTextPassThrough(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{"single", []string{"Paris is the capital."}},
		{"several", []string{"Paris", " is", " the capital."}},
		{"whitespace kept", []string{"  leading", "\n\n", "trailing  "}},
		{"braces", []string{"{not json", "} still not"}},
		{"json without payload", []string{`{"other":"x"}`, " tail"}},
		{"json scalar", []string{"42", ` "quoted"`}},
		{"empty chunks", []string{"", "a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw [][]byte
			for _, c := range tt.chunks {
				raw = append(raw, []byte(c))
			}
			got, _ := decodeAll(t, raw...)
			assert.Equal(t, strings.Join(tt.chunks, ""), got)
		})
	}
}

func TestDecodeJSONText(t *testing.T) {
	pieces := []string{"Paris", " is", " the ", "capital."}
	var chunks [][]byte
	for _, p := range pieces {
		chunks = append(chunks, []byte(`{"text": "`+p+`"}`))
	}

	got, stats := decodeAll(t, chunks...)
	assert.Equal(t, "Paris is the capital.", got)
	assert.Equal(t, len(pieces), stats.JSONChunks)
	assert.Equal(t, 0, stats.LiteralChunks)
}

func TestDecodeFieldPriority(t *testing.T) {
	tests := []struct {
		chunk string
		want  []string
	}{
		{`{"text":"a","content":"b","chunk":"c"}`, []string{"a"}},
		{`{"content":"b","chunk":"c"}`, []string{"b"}},
		{`{"chunk":"c"}`, []string{"c"}},
		{`{"text":1,"content":"b"}`, []string{"b"}},
		{`{"text":""}`, nil},
		{`{"text":"","content":"x"}`, []string{"x"}},
		{`{"text":"","content":"","chunk":"y"}`, []string{"y"}},
		{`{"text":"line\nbreak é"}`, []string{"line\nbreak é"}},
	}

	for _, tt := range tests {
		d := New()
		assert.Equal(t, tt.want, d.Decode([]byte(tt.chunk)), "Decode(%s)", tt.chunk)
	}
}

func TestDecodeJSONPerLine(t *testing.T) {
	d := New()

	got := d.Decode([]byte("{\"text\":\"Hel\"}\n{\"content\":\"lo\"}\n"))
	assert.Equal(t, []string{"Hel", "lo"}, got)

	// One bad line makes the whole chunk literal.
	mixed := "{\"text\":\"a\"}\nplain words\n"
	assert.Equal(t, []string{mixed}, d.Decode([]byte(mixed)))
}

func TestDecodeMultibyteSplit(t *testing.T) {
	words := []string{"héllo wörld", "日本語のテキスト", "emoji 🚀🎉 done"}

	for _, s := range words {
		whole, _ := decodeAll(t, []byte(s))
		require.Equal(t, s, whole)

		b := []byte(s)
		for cut := 1; cut < len(b); cut++ {
			got, stats := decodeAll(t, b[:cut], b[cut:])
			assert.Equal(t, whole, got, "split at byte %d of %q", cut, s)
			assert.NotContains(t, got, "�")
			assert.Equal(t, 0, stats.InvalidUTF8)
		}
	}
}

func TestDecodeOneByteAtATime(t *testing.T) {
	s := "Ünïcödé 🚀 ok"
	var chunks [][]byte
	for _, b := range []byte(s) {
		chunks = append(chunks, []byte{b})
	}

	got, _ := decodeAll(t, chunks...)
	assert.Equal(t, s, got)
}

func TestDecodeHoldsIncompleteTail(t *testing.T) {
	d := New()
	rocket := []byte("🚀")

	assert.Equal(t, []string{"go "}, d.Decode(append([]byte("go "), rocket[:2]...)))
	assert.Nil(t, d.Decode(rocket[2:3]))
	assert.Equal(t, []string{"🚀"}, d.Decode(rocket[3:]))
}

func TestDecodeInvalidBytes(t *testing.T) {
	got, stats := decodeAll(t, []byte{'a', 0xff, 'b'})
	assert.Equal(t, "a�b", got)
	assert.Equal(t, 1, stats.InvalidUTF8)
	assert.Equal(t, 1, stats.Anomalies())
}

func TestFlushTruncatedTail(t *testing.T) {
	d := New()
	euro := []byte("€")

	assert.Equal(t, []string{"x"}, d.Decode(append([]byte("x"), euro[:2]...)))
	assert.Equal(t, []string{"�"}, d.Flush())
	assert.Nil(t, d.Flush(), "second flush has nothing left")
}

func TestDecodeMalformedJSONIsLiteral(t *testing.T) {
	d := New()

	chunk := `{"text": "oops" garbage`
	assert.Equal(t, []string{chunk}, d.Decode([]byte(chunk)))
	assert.Equal(t, 1, d.Stats().MalformedJSON)
	assert.Equal(t, 1, d.Stats().LiteralChunks)
}

func TestFlushEmitsUnfinishedJSON(t *testing.T) {
	d := New()

	chunk := `{"text": "unterminated`
	assert.Nil(t, d.Decode([]byte(chunk)))
	assert.Equal(t, []string{chunk}, d.Flush())
	assert.Equal(t, 1, d.Stats().MalformedJSON)
	assert.Equal(t, 1, d.Stats().LiteralChunks)
	assert.Nil(t, d.Flush())
}

func TestDecodeMergedFrames(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []string
	}{
		{"back to back", `{"text":"Hel"}{"text":"lo"}`, []string{"Hel", "lo"}},
		{"mixed fields", `{"text":"Hel"}{"content":"lo"}`, []string{"Hel", "lo"}},
		{"spaced", "{\"text\":\"a\"} \r\n {\"chunk\":\"b\"}\n", []string{"a", "b"}},
		{"empty frame between", `{"text":"a"}{"text":""}{"text":"b"}`, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			assert.Equal(t, tt.want, d.Decode([]byte(tt.chunk)))
			assert.Nil(t, d.Flush())
			assert.Equal(t, 0, d.Stats().Anomalies())
		})
	}
}

func TestDecodeFrameSplitAcrossChunks(t *testing.T) {
	d := New()

	assert.Nil(t, d.Decode([]byte(`{"text":"Pa`)))
	assert.Equal(t, []string{"Paris"}, d.Decode([]byte(`ris"}`)))
	assert.Nil(t, d.Flush())
}

func TestDecodeJSONLinesSplitAcrossChunks(t *testing.T) {
	d := New()

	assert.Equal(t, []string{"Hel"}, d.Decode([]byte("{\"text\":\"Hel\"}\n{\"te")))
	assert.Equal(t, []string{"lo"}, d.Decode([]byte("xt\":\"lo\"}\n")))
	assert.Nil(t, d.Decode([]byte("\n")), "separators between frames are dropped")
	assert.Nil(t, d.Flush())

	stats := d.Stats()
	assert.Equal(t, 2, stats.JSONChunks)
	assert.Equal(t, 0, stats.LiteralChunks)
	assert.Equal(t, 0, stats.Anomalies())
}

func TestDecodeSplitAtEveryByte(t *testing.T) {
	stream := "{\"text\":\"Paris \"}\n{\"content\":\"is \u00e9\"}{\"chunk\":\"🚀\"}\n"
	b := []byte(stream)

	for cut := 1; cut < len(b); cut++ {
		got, stats := decodeAll(t, b[:cut], b[cut:])
		assert.Equal(t, "Paris is é🚀", got, "split at byte %d", cut)
		assert.Equal(t, 0, stats.Anomalies(), "split at byte %d", cut)
	}
}

func TestDecodeHeldTextTurnsLiteral(t *testing.T) {
	d := New()

	assert.Nil(t, d.Decode([]byte(`{"te`)))
	assert.Equal(t, []string{`{"text" is a field`}, d.Decode([]byte(`xt" is a field`)))
	assert.Equal(t, 1, d.Stats().MalformedJSON)
}

func TestStatsCounts(t *testing.T) {
	d := New()
	d.Decode([]byte("abc"))
	d.Decode([]byte(`{"text":"def"}`))
	d.Decode(nil)

	s := d.Stats()
	assert.Equal(t, 3, s.Chunks)
	assert.Equal(t, int64(17), s.Bytes)
	assert.Equal(t, 2, s.Fragments)
	assert.Equal(t, 0, s.Anomalies())
}
