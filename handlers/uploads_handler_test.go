package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadsHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.png"), []byte("png-bytes"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive", "bob.png"), []byte("old"), 0o600))

	h := http.StripPrefix("/uploads/profile/", NewUploadsHandler(dir))

	tests := []struct {
		name   string
		target string
		want   int
		body   string
	}{
		{"file is served", "/uploads/profile/alice.png", http.StatusOK, "png-bytes"},
		{"nested file is served", "/uploads/profile/archive/bob.png", http.StatusOK, "old"},
		{"root directory is not listed", "/uploads/profile/", http.StatusNotFound, ""},
		{"sub directory is not listed", "/uploads/profile/archive/", http.StatusNotFound, ""},
		{"missing file", "/uploads/profile/nobody.png", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, tt.want, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
			assert.NotContains(t, w.Body.String(), "alice.png")
		})
	}
}
