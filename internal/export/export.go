// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/session"
	"github.com/jeranaias/docchat/internal/util"
)

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("transcript has no messages")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the exportable part of a session: committed messages only.
// An answer still streaming is left out.
type Transcript struct {
	SessionID string          `json:"session_id"`
	Source    string          `json:"source,omitempty"`
	Exported  time.Time       `json:"exported"`
	Messages  []model.Message `json:"messages"`
}

// FromSession captures the committed log of sess. source names where the
// answers came from, usually the proxy URL.
func FromSession(sess *session.State, source string) *Transcript {
	return &Transcript{
		SessionID: sess.ID(),
		Source:    source,
		Exported:  time.Now(),
		Messages:  sess.Messages(),
	}
}

// Title is a one-line preview of the first question.
func (t *Transcript) Title() string {
	for _, m := range t.Messages {
		if m.Role == model.RoleUser && !m.IsEmpty() {
			return util.Preview(m.Content, 60)
		}
	}
	return "Conversation"
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript to one file format.
type Exporter interface {
	// Export converts a transcript to the target format.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a front matter header with session details.
	IncludeMetadata bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{IncludeMetadata: true}
}

// ForPath picks the exporter matching path's extension. Paths without an
// extension get Markdown.
func ForPath(path string, opts *Options) (Exporter, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", ".md", ".markdown":
		return NewMarkdownExporter(opts), nil
	case ".json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use .md or .json)", ext)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// WriteFile exports t to path, adding the exporter's extension when path
// has none. The file is replaced atomically. It returns the path written.
func WriteFile(t *Transcript, path string, opts *Options) (string, error) {
	if len(t.Messages) == 0 {
		return "", ErrEmptyTranscript
	}

	exporter, err := ForPath(path, opts)
	if err != nil {
		return "", err
	}
	if filepath.Ext(path) == "" {
		path += exporter.FileExtension()
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}
