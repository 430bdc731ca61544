package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/garden/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err, "OpenMemory")
	t.Cleanup(func() { db.Close() })
	return New(db, nil, "test-version", nil)
}

// do sends a request with an optional JSON body.
func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
	assert.Equal(t, float64(store.LatestVersion), body["schema_version"])
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv, "GET", "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorMapping(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/entities/abc", "", http.StatusBadRequest},
		{"GET", "/api/entities/99", "", http.StatusNotFound},
		{"POST", "/api/entities", "{not json", http.StatusBadRequest},
		{"POST", "/api/entities", `{"name":"X","kind":"robot"}`, http.StatusBadRequest},
		{"POST", "/api/entities", `{"name":"","kind":"person"}`, http.StatusBadRequest},
		{"GET", "/api/entities?kind=robot", "", http.StatusBadRequest},
		{"PUT", "/api/settings", `{"decay_factor":-1,"decay_type":"linear"}`, http.StatusBadRequest},
		{"PUT", "/api/settings", `{"decay_factor":1,"decay_type":"cubic"}`, http.StatusBadRequest},
		{"DELETE", "/api/interactions/42", "", http.StatusNotFound},
		{"DELETE", "/api/tags/42", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := do(t, srv, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.want, w.Code, "%s %s: %s", tt.method, tt.path, w.Body.String())
		body := decodeBody[map[string]string](t, w)
		assert.NotEmpty(t, body["error"])
	}
}
