// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jeranaias/docchat/internal/config"
)

// Rejection records why a path was left out of an upload.
type Rejection struct {
	Path   string
	Reason string
}

func (r Rejection) String() string {
	return r.Path + ": " + r.Reason
}

// Collect splits paths into files that may be uploaded and rejections.
// Duplicates are dropped; accepted paths keep their input order.
func Collect(paths []string, cfg config.UploadConfig) ([]string, []Rejection) {
	var (
		accepted []string
		rejected []Rejection
		seen     = make(map[string]bool, len(paths))
	)

	for _, p := range paths {
		clean := filepath.Clean(p)
		if seen[clean] {
			continue
		}
		seen[clean] = true

		if reason := check(clean, cfg); reason != "" {
			rejected = append(rejected, Rejection{Path: p, Reason: reason})
			continue
		}
		accepted = append(accepted, clean)
	}
	return accepted, rejected
}

// Allowed reports whether path has an accepted extension.
func Allowed(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
}

func check(path string, cfg config.UploadConfig) string {
	if !Allowed(path, cfg.AllowedExtensions) {
		return fmt.Sprintf("unsupported file type (allowed: %s)", strings.Join(cfg.AllowedExtensions, ", "))
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return "no such file"
	case err != nil:
		return err.Error()
	case info.IsDir():
		return "is a directory"
	case !info.Mode().IsRegular():
		return "not a regular file"
	case info.Size() == 0:
		return "file is empty"
	case cfg.MaxFileBytes > 0 && info.Size() > cfg.MaxFileBytes:
		return fmt.Sprintf("file is larger than %d bytes", cfg.MaxFileBytes)
	}
	return ""
}
