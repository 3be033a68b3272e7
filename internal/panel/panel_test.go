package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandler_ServesEmbeddedIndex(t *testing.T) {
	w := get(t, Handler(""), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, w.Body.String(), "/api/v1")
	assert.Equal(t, "no-cache, must-revalidate", w.Header().Get("Cache-Control"))
}

func TestHandler_UnknownPathFallsBackToIndex(t *testing.T) {
	w := get(t, Handler(""), http.MethodGet, "/ups/ups1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")
}

func TestHandler_RejectsWrites(t *testing.T) {
	w := get(t, Handler(""), http.MethodPost, "/")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
}

func TestHandler_ServesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<!DOCTYPE html><p>local</p>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.css"), []byte("body{}"), 0o600))
	h := Handler(dir)

	w := get(t, h, http.MethodGet, "/")
	assert.Contains(t, w.Body.String(), "local")

	w = get(t, h, http.MethodGet, "/extra.css")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())
}

func TestHandler_MissingDirectoryUsesEmbedded(t *testing.T) {
	w := get(t, Handler(filepath.Join(t.TempDir(), "nope")), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "upswatch")
}
