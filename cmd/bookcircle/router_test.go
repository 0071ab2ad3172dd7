package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "covers"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "covers", "9780441013593.jpg"), []byte("jpeg"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newRouter(logger, root, nil, nil, nil, nil)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthcheck")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get("/files/covers/9780441013593.jpg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())

	for _, path := range []string{"/api/v1/library", "/api/v1/lendings", "/api/v1/borrowings"} {
		rec = get(path)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec = get("/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
