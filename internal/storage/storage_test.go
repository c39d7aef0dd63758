package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
	"licensegate/internal/license"
)

func TestFileStoreOpen(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/releases/widget-1.0.0.jar", []byte("jar bytes"), 0o644))
	require.NoError(t, mem.MkdirAll("/releases/dir", 0o755))
	store := NewFileStoreFs(mem)
	ctx := context.Background()

	body, size, err := store.Open(ctx, "releases/widget-1.0.0.jar")
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, 9, size)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "jar bytes", string(data))

	_, _, err = store.Open(ctx, "releases/missing.jar")
	assert.ErrorIs(t, err, license.ErrArtifactNotFound)

	_, _, err = store.Open(ctx, "releases/dir")
	assert.ErrorIs(t, err, license.ErrArtifactNotFound)

	for _, key := range []string{"", "../etc/passwd", "a\\b", "/"} {
		_, _, err = store.Open(ctx, key)
		assert.Error(t, err, key)
		assert.NotErrorIs(t, err, license.ErrArtifactNotFound, key)
	}
}

func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	objects := map[string]string{"/artifacts/releases/widget.jar": "s3 jar bytes"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, ok := objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		if r.URL.Path == "/artifacts/releases/widget.jar" && r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3StoreOpen(t *testing.T) {
	srv := fakeS3(t)
	store, err := New(config.StorageConfig{
		Backend:         "s3",
		Bucket:          "artifacts",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		ForcePathStyle:  true,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	ctx := context.Background()

	body, size, err := store.Open(ctx, "releases/widget.jar")
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, 12, size)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "s3 jar bytes", string(data))

	_, _, err = store.Open(ctx, "releases/missing.jar")
	assert.ErrorIs(t, err, license.ErrArtifactNotFound)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	s, err := New(config.StorageConfig{Backend: "fs", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
}
