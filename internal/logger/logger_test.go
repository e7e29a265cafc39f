// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestInitJSONToWriter(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	closer := Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer closer.Close()

	slog.Debug("PROXY_REQUEST", "path", "/api/query")
	out := buf.String()
	assert.Contains(t, out, `"msg":"PROXY_REQUEST"`)
	assert.Contains(t, out, `"path":"/api/query"`)
}

func TestInitLevelFilters(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	Init(Config{Level: "warn", Output: &buf})
	slog.Info("hidden")
	slog.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitFile(t *testing.T) {
	restoreDefault(t)
	path := filepath.Join(t.TempDir(), "logs", "docchat.log")

	closer := Init(Config{File: path})
	slog.Info("TURN_COMPLETE", "fragments", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "TURN_COMPLETE"))
}

func TestRequestLoggerContext(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	Init(Config{Format: "json", Output: &buf})

	l, id := NewRequestLogger()
	require.NotEmpty(t, id)

	ctx := NewContext(context.Background(), l)
	FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"requestId":"`+id+`"`)

	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
