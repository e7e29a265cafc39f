// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// UploadField is the multipart field name the backend reads files from.
const UploadField = "files"

// UploadResult is the proxy's answer to an upload.
type UploadResult struct {
	// Files lists the names the backend accepted.
	Files []string

	// Message is the backend's status line, or a generated one.
	Message string
}

// Upload streams the files at paths to the proxy as one multipart request.
// File contents are piped, never held in memory.
func (c *Client) Upload(ctx context.Context, paths []string) (*UploadResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("upload: no files given")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
	}

	url, err := c.endpoint("api/upload")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	// Unblocks the writer goroutine if the request never consumed the body.
	pr.Close()
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "upload request failed", Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to read response", Cause: err}
	}
	return parseUploadResult(raw, len(paths)), nil
}

// writeParts copies each file into its own part.
func writeParts(mw *multipart.Writer, paths []string) error {
	for _, p := range paths {
		if err := writePart(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile(UploadField, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// parseUploadResult reads {files:[...]}. Entries may be plain names or
// objects carrying filename or name.
func parseUploadResult(raw []byte, sent int) *UploadResult {
	res := &UploadResult{}
	if gjson.ValidBytes(raw) {
		doc := gjson.ParseBytes(raw)
		doc.Get("files").ForEach(func(_, v gjson.Result) bool {
			switch {
			case v.Type == gjson.String:
				res.Files = append(res.Files, v.Str)
			case v.IsObject():
				if name := v.Get("filename"); name.Exists() {
					res.Files = append(res.Files, name.String())
				} else if name := v.Get("name"); name.Exists() {
					res.Files = append(res.Files, name.String())
				}
			}
			return true
		})
		res.Message = doc.Get("message").String()
	}

	if res.Message == "" {
		n := len(res.Files)
		if n == 0 {
			n = sent
		}
		res.Message = fmt.Sprintf("Successfully uploaded %d files", n)
	}
	return res
}
