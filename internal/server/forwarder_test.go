// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/docchat/internal/config"
)

// newTestProxy starts the proxy in front of backendURL.
func newTestProxy(t *testing.T, backendURL string, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Backend.URL = backendURL
	cfg.Server.RateLimit = 0
	if mutate != nil {
		mutate(cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown(context.Background())
	})
	return s, ts
}

// streamingBackend writes each chunk with a flush in between.
func streamingBackend(t *testing.T, chunks []string, gotQuery *string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if gotQuery != nil {
			*gotQuery = body["query"]
		}

		w.Header().Set("Content-Type", "text/plain")
		for _, c := range chunks {
			io.WriteString(w, c)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func postQuery(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/query", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e.Error
}

// =============================================================================
// QUERY RELAY TESTS
// =============================================================================

func TestQueryStreamsBackendBody(t *testing.T) {
	var got string
	backend := streamingBackend(t, []string{"Paris", " is", " the capital."}, &got)
	_, proxy := newTestProxy(t, backend.URL+"/", nil)

	resp := postQuery(t, proxy.URL, `{"query":"What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", string(body))
	assert.Equal(t, "What is the capital of France?", got)
}

func TestQueryMessageAlias(t *testing.T) {
	var got string
	backend := streamingBackend(t, []string{"ok"}, &got)
	_, proxy := newTestProxy(t, backend.URL, nil)

	resp := postQuery(t, proxy.URL, `{"message":"legacy field"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	io.ReadAll(resp.Body)

	assert.Equal(t, "legacy field", got, "backend always receives {query}")
}

func TestQueryPrefersCanonicalField(t *testing.T) {
	var got string
	backend := streamingBackend(t, []string{"ok"}, &got)
	_, proxy := newTestProxy(t, backend.URL, nil)

	resp := postQuery(t, proxy.URL, `{"query":"new","message":"old"}`)
	io.ReadAll(resp.Body)
	assert.Equal(t, "new", got)
}

func TestQueryBadRequests(t *testing.T) {
	backend := streamingBackend(t, []string{"unused"}, nil)
	_, proxy := newTestProxy(t, backend.URL, func(c *config.Config) {
		c.Server.MaxBodyBytes = 64
	})

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"empty object", `{}`, http.StatusBadRequest, "query is required"},
		{"blank query", `{"query":"   "}`, http.StatusBadRequest, "query is required"},
		{"not json", `query=hi`, http.StatusBadRequest, "invalid request body"},
		{"too large", `{"query":"` + strings.Repeat("x", 200) + `"}`, http.StatusRequestEntityTooLarge, "request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postQuery(t, proxy.URL, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, decodeError(t, resp))
		})
	}
}

func TestQueryMethodNotAllowed(t *testing.T) {
	backend := streamingBackend(t, nil, nil)
	_, proxy := newTestProxy(t, backend.URL, nil)

	resp, err := http.Get(proxy.URL + "/api/query")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestQueryBackendStatusRelayed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail field", http.StatusServiceUnavailable, `{"detail":"index is rebuilding"}`, "index is rebuilding"},
		{"error field", http.StatusBadRequest, `{"error":"empty index"}`, "empty index"},
		{"no body", http.StatusNotFound, ``, "Backend responded with 404"},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "Backend responded with 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer backend.Close()
			s, proxy := newTestProxy(t, backend.URL, nil)

			resp := postQuery(t, proxy.URL, `{"query":"hi"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.want, decodeError(t, resp))
			assert.Equal(t, int64(1), s.Forwarder().Stats().BackendErrors.Load())
		})
	}
}

func TestQueryBackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	_, proxy := newTestProxy(t, url, nil)

	resp := postQuery(t, proxy.URL, `{"query":"Hello"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to process query", decodeError(t, resp))
}

func TestQueryDeliversChunksBeforeBackendFinishes(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "first ")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		io.WriteString(w, "second")
	}))
	defer backend.Close()
	_, proxy := newTestProxy(t, backend.URL, nil)

	resp := postQuery(t, proxy.URL, `{"query":"stream please"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	br := bufio.NewReader(resp.Body)
	first := make([]byte, len("first "))
	_, err := io.ReadFull(br, first)
	require.NoError(t, err)
	assert.Equal(t, "first ", string(first), "first chunk must arrive while the backend is still open")

	close(release)
	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, "second", string(rest))
}

func TestQueryClientDisconnectReleasesBackend(t *testing.T) {
	backendDone := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(backendDone)
	}))
	defer backend.Close()
	s, proxy := newTestProxy(t, backend.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, proxy.URL+"/api/query", strings.NewReader(`{"query":"long answer"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 7)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	cancel()
	resp.Body.Close()

	select {
	case <-backendDone:
	case <-time.After(5 * time.Second):
		t.Fatal("backend request was not cancelled after client disconnect")
	}

	assert.Eventually(t, func() bool {
		return s.Forwarder().Stats().ClientDisconnects.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueryBackendFailureMidStreamAbortsResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Paris")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer backend.Close()
	_, proxy := newTestProxy(t, backend.URL, nil)

	resp := postQuery(t, proxy.URL, `{"query":"Hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err, "client must see an abnormal termination")
	assert.Equal(t, "Paris", string(body))
}

// =============================================================================
// UPLOAD RELAY TESTS
// =============================================================================

func TestUploadRelaysMultipart(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var names []string
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"files": names})
	}))
	defer backend.Close()
	_, proxy := newTestProxy(t, backend.URL, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		io.WriteString(part, "%PDF-1.4 fake")
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(proxy.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, out.Files)
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	backend := streamingBackend(t, nil, nil)
	_, proxy := newTestProxy(t, backend.URL, nil)

	resp, err := http.Post(proxy.URL+"/api/upload", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, "expected multipart/form-data", decodeError(t, resp))
}

func TestUploadBackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()
	_, proxy := newTestProxy(t, url, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("files", "a.pdf")
	io.WriteString(part, "x")
	mw.Close()

	resp, err := http.Post(proxy.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to upload files", decodeError(t, resp))
}

func TestQueryRequestText(t *testing.T) {
	tests := []struct {
		req   QueryRequest
		text  string
		alias bool
	}{
		{QueryRequest{Query: "a"}, "a", false},
		{QueryRequest{Message: "b"}, "b", true},
		{QueryRequest{Query: " ", Message: "c"}, "c", true},
		{QueryRequest{}, "", false},
	}
	for _, tt := range tests {
		text, alias := tt.req.Text()
		assert.Equal(t, tt.text, text)
		assert.Equal(t, tt.alias, alias)
	}
}
