package dispatch

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locomote-sh/locomote/internal/cachelayout"
	"github.com/locomote-sh/locomote/internal/locoerrors"
)

func TestHTTPResponseWriter_JSON(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewHTTPResponseWriter(rec)

	require.NoError(t, w.RespondWithJSON(map[string]string{"id": "f1"}))

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "f1", out["id"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHTTPResponseWriter_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	w := NewHTTPResponseWriter(rec)

	require.NoError(t, w.RespondWithFile(path, "text/plain"))
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestHTTPResponseWriter_StreamedResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewHTTPResponseWriter(rec)

	require.NoError(t, w.StartResponse("image/png", cachelayout.CacheApp))
	require.NoError(t, w.SendData([]byte("bytes")))
	w.Done()

	assert.Equal(t, "bytes", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "app", rec.Header().Get("X-Locomote-Cache-Policy"))
}

func TestHTTPResponseWriter_ErrorMapsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewHTTPResponseWriter(rec)

	w.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "missing"))
	assert.Equal(t, 404, rec.Code)
}
