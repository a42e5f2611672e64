package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyjsonserver/rustyjsonserver/internal/logging"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestServer(t *testing.T, configBody string) *Server {
	t.Helper()
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, configBody)
	var buf bytes.Buffer
	srv, err := New(cfgPath, Options{
		NoWatch: true,
		DBDir:   filepath.Join(dir, "data"),
		Logger:  logging.New("rjs-test", logging.LevelError, &buf),
	})
	require.NoError(t, err)
	return srv
}

func TestServeHTTPStaticRoute(t *testing.T) {
	srv := newTestServer(t, `{
		"resources": [
			{ "path": "health", "methods": [
				{ "method": "GET", "response": { "status": 200, "body": { "ok": true } } }
			]}
		]
	}`)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServeHTTPNotFound(t *testing.T) {
	srv := newTestServer(t, `{ "resources": [] }`)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeHTTPMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, `{
		"resources": [
			{ "path": "health", "methods": [
				{ "method": "GET", "response": { "body": 1 } }
			]}
		]
	}`)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServeHTTPDynamicScriptSeesRequestBody(t *testing.T) {
	srv := newTestServer(t, `{
		"resources": [
			{ "path": "echo", "methods": [
				{ "method": "POST", "script": "return 200, req.body;" }
			]}
		]
	}`)

	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(`{"n":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestAddrReflectsConfiguredPort(t *testing.T) {
	srv := newTestServer(t, `{ "port": 9191, "resources": [] }`)
	assert.Equal(t, ":9191", srv.Addr())
}
