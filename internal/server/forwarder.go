// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/logger"
	"github.com/jeranaias/docchat/internal/util"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// QueryFailedMessage is returned when the backend cannot be reached.
	QueryFailedMessage = "Failed to process query"

	// UploadFailedMessage is returned when an upload cannot be relayed.
	UploadFailedMessage = "Failed to upload files"

	// relayBufferSize is the read size for the streaming relay.
	relayBufferSize = 32 * 1024

	// maxErrorBody bounds how much of a backend error body is read.
	maxErrorBody = 64 * 1024
)

// ============================================================================
// RELAY STATS
// ============================================================================

// RelayStats counts relay activity for the health endpoint.
type RelayStats struct {
	Queries           atomic.Int64
	Uploads           atomic.Int64
	ActiveStreams     atomic.Int64
	StreamedBytes     atomic.Int64
	BackendErrors     atomic.Int64
	ClientDisconnects atomic.Int64
}

// RelayStatsSnapshot is the JSON form of RelayStats.
type RelayStatsSnapshot struct {
	Queries           int64 `json:"queries"`
	Uploads           int64 `json:"uploads"`
	ActiveStreams     int64 `json:"active_streams"`
	StreamedBytes     int64 `json:"streamed_bytes"`
	BackendErrors     int64 `json:"backend_errors"`
	ClientDisconnects int64 `json:"client_disconnects"`
}

// Snapshot returns a copy of the counters.
func (s *RelayStats) Snapshot() RelayStatsSnapshot {
	return RelayStatsSnapshot{
		Queries:           s.Queries.Load(),
		Uploads:           s.Uploads.Load(),
		ActiveStreams:     s.ActiveStreams.Load(),
		StreamedBytes:     s.StreamedBytes.Load(),
		BackendErrors:     s.BackendErrors.Load(),
		ClientDisconnects: s.ClientDisconnects.Load(),
	}
}

// ============================================================================
// FORWARDER
// ============================================================================

// QueryRequest is the body accepted by POST /api/query. Query is canonical;
// Message is a deprecated alias kept for older front ends.
type QueryRequest struct {
	Query   string `json:"query,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text returns the question and whether the deprecated alias supplied it.
func (q QueryRequest) Text() (text string, alias bool) {
	if strings.TrimSpace(q.Query) != "" {
		return q.Query, false
	}
	if strings.TrimSpace(q.Message) != "" {
		return q.Message, true
	}
	return "", false
}

// backendQuery is the body sent to the backend.
type backendQuery struct {
	Query string `json:"query"`
}

// Forwarder relays requests to the backend.
type Forwarder struct {
	backendURL string
	queryURL   string
	uploadURL  string
	client     *http.Client

	maxBody   int64
	maxUpload int64

	stats RelayStats
}

// NewForwarder builds a forwarder for the configured backend. The HTTP
// client has no overall timeout because answers are streamed; dialing and
// the wait for response headers are bounded instead.
func NewForwarder(backend config.BackendConfig, srv config.ServerConfig) (*Forwarder, error) {
	queryURL, err := util.JoinURL(backend.URL, "query")
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	uploadURL, err := util.JoinURL(backend.URL, "documents/upload")
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   backend.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.ResponseHeaderTimeout = backend.ResponseHeaderTimeout

	return &Forwarder{
		backendURL: backend.URL,
		queryURL:   queryURL,
		uploadURL:  uploadURL,
		client:     &http.Client{Transport: transport},
		maxBody:    srv.MaxBodyBytes,
		maxUpload:  srv.MaxUploadBytes,
	}, nil
}

// Stats returns the relay counters.
func (f *Forwarder) Stats() *RelayStats {
	return &f.stats
}

// HandleQuery serves POST /api/query.
func (f *Forwarder) HandleQuery(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	f.stats.Queries.Add(1)

	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, f.maxBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		log.Debug("PROXY_BAD_REQUEST", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text, alias := req.Text()
	if text == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if alias {
		log.Debug("PROXY_DEPRECATED_FIELD", "field", "message")
	}

	body, err := json.Marshal(backendQuery{Query: text})
	if err != nil {
		log.Error("PROXY_ENCODE_FAILED", "error", err)
		writeError(w, http.StatusInternalServerError, QueryFailedMessage)
		return
	}

	breq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, f.queryURL, bytes.NewReader(body))
	if err != nil {
		log.Error("PROXY_REQUEST_BUILD_FAILED", "error", err)
		writeError(w, http.StatusInternalServerError, QueryFailedMessage)
		return
	}
	breq.Header.Set("Content-Type", "application/json")
	breq.Header.Set("Accept", "text/event-stream, application/x-ndjson, text/plain, */*")
	breq.Header.Set("X-Request-Id", w.Header().Get("X-Request-Id"))

	log.Info("PROXY_QUERY", "backend", f.queryURL, "query", util.Preview(text, 80))

	resp, err := f.client.Do(breq)
	if err != nil {
		if r.Context().Err() != nil {
			f.stats.ClientDisconnects.Add(1)
			log.Info("PROXY_CLIENT_DISCONNECT", "stage", "connect")
			return
		}
		f.stats.BackendErrors.Add(1)
		log.Error("PROXY_BACKEND_UNREACHABLE", "backend", f.queryURL, "error", err)
		writeError(w, http.StatusInternalServerError, QueryFailedMessage)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.relayStatusError(w, resp, log)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	f.stats.ActiveStreams.Add(1)
	defer f.stats.ActiveStreams.Add(-1)

	start := time.Now()
	n, err := relay(w, resp.Body)
	f.stats.StreamedBytes.Add(n)

	switch {
	case err == nil:
		log.Info("PROXY_STREAM_COMPLETE", "bytes", n, "duration", time.Since(start).Round(time.Millisecond))
	case r.Context().Err() != nil || errors.Is(err, errClientWrite):
		f.stats.ClientDisconnects.Add(1)
		log.Info("PROXY_CLIENT_DISCONNECT", "stage", "stream", "bytes", n)
	default:
		f.stats.BackendErrors.Add(1)
		log.Error("PROXY_STREAM_ERROR", "bytes", n, "error", err)
		// Abort so the client sees a broken stream rather than a clean end.
		panic(http.ErrAbortHandler)
	}
}

// HandleUpload serves POST /api/upload by streaming the multipart body to
// the backend's upload endpoint.
func (f *Forwarder) HandleUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	f.stats.Uploads.Add(1)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data")
		return
	}

	body := http.MaxBytesReader(w, r.Body, f.maxUpload)
	breq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, f.uploadURL, body)
	if err != nil {
		log.Error("PROXY_REQUEST_BUILD_FAILED", "error", err)
		writeError(w, http.StatusInternalServerError, UploadFailedMessage)
		return
	}
	breq.ContentLength = r.ContentLength
	breq.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	breq.Header.Set("X-Request-Id", w.Header().Get("X-Request-Id"))

	resp, err := f.client.Do(breq)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		case r.Context().Err() != nil:
			f.stats.ClientDisconnects.Add(1)
			log.Info("PROXY_CLIENT_DISCONNECT", "stage", "upload")
		default:
			f.stats.BackendErrors.Add(1)
			log.Error("PROXY_UPLOAD_FAILED", "backend", f.uploadURL, "error", err)
			writeError(w, http.StatusInternalServerError, UploadFailedMessage)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.relayStatusError(w, resp, log)
		return
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Warn("PROXY_UPLOAD_RELAY_ERROR", "error", err)
	}
	log.Info("PROXY_UPLOAD_COMPLETE", "status", resp.StatusCode, "bytes", r.ContentLength)
}

// relayStatusError copies a backend non-2xx status to the client with a
// JSON error body.
func (f *Forwarder) relayStatusError(w http.ResponseWriter, resp *http.Response, log *slog.Logger) {
	f.stats.BackendErrors.Add(1)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := util.ErrorMessage(raw)
	if msg == "" {
		msg = fmt.Sprintf("Backend responded with %d", resp.StatusCode)
	}

	log.Warn("PROXY_BACKEND_STATUS", "status", resp.StatusCode, "message", util.Preview(msg, 200))
	writeError(w, resp.StatusCode, msg)
}

// errClientWrite marks a failure writing to the downstream client.
var errClientWrite = errors.New("client write failed")

// relay copies src to w, flushing after every chunk so nothing is held back
// by the server's buffers. It returns the number of bytes relayed.
func relay(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, relayBufferSize)

	// Push the headers out before the first chunk.
	if err := rc.Flush(); err != nil {
		return 0, fmt.Errorf("%w: %v", errClientWrite, err)
	}

	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("%w: %v", errClientWrite, werr)
			}
			total += int64(n)
			if ferr := rc.Flush(); ferr != nil {
				return total, fmt.Errorf("%w: %v", errClientWrite, ferr)
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// checkBackend is used by the health endpoint to report reachability.
func (f *Forwarder) checkBackend(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.backendURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
