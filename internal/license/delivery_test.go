package license

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/security"
	api "licensegate/pkg/contracts/api/v1"
	"licensegate/pkg/contracts/domain"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

type stubWatermarker struct {
	out []byte
	err error
	got []byte
}

func (s *stubWatermarker) Embed(ctx context.Context, req WatermarkRequest, artifact []byte) ([]byte, error) {
	s.got = artifact
	return s.out, s.err
}

func TestEncryptStageRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("artifact"), 1000)
	key := []byte("session-key-0123456789abcdef")
	src := &closeTracker{Reader: bytes.NewReader(plain)}

	stage := &encryptStage{sessionKey: key, chunkSize: 1024}
	assert.False(t, stage.Buffered())

	out, err := stage.Apply(context.Background(), Artifact{Body: src, Size: int64(len(plain))})
	require.NoError(t, err)

	encoded, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.EqualValues(t, out.Size, len(encoded))

	require.NoError(t, out.Body.Close())
	assert.True(t, src.closed)

	dec, err := security.NewStreamDecrypter(bytes.NewReader(encoded), key)
	require.NoError(t, err)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestWatermarkStage(t *testing.T) {
	wm := &stubWatermarker{out: []byte("marked")}
	src := &closeTracker{Reader: bytes.NewReader([]byte("original"))}
	stage := &watermarkStage{client: wm, maxBuffer: 1 << 10}
	assert.True(t, stage.Buffered())

	out, err := stage.Apply(context.Background(), Artifact{Body: src, Size: 8})
	require.NoError(t, err)
	assert.True(t, src.closed)
	assert.Equal(t, []byte("original"), wm.got)
	assert.EqualValues(t, 6, out.Size)

	body, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, "marked", string(body))
}

func TestWatermarkStageRejectsOversizedArtifact(t *testing.T) {
	wm := &stubWatermarker{out: []byte("marked")}
	stage := &watermarkStage{client: wm, maxBuffer: 4}

	_, err := stage.Apply(context.Background(), Artifact{Body: io.NopCloser(bytes.NewReader([]byte("too large"))), Size: 9})
	assert.Error(t, err)
	assert.Nil(t, wm.got, "service not called")

	// A lying size is caught while reading
	_, err = stage.Apply(context.Background(), Artifact{Body: io.NopCloser(bytes.NewReader([]byte("too large"))), Size: 2})
	assert.Error(t, err)
	assert.Nil(t, wm.got)
}

func TestApplyStagesClosesOnFailure(t *testing.T) {
	src := &closeTracker{Reader: bytes.NewReader([]byte("original"))}
	stages := []Stage{
		&watermarkStage{client: &stubWatermarker{err: errors.New("boom")}},
		&encryptStage{sessionKey: []byte("k"), chunkSize: 16},
	}

	_, err := applyStages(context.Background(), Artifact{Body: src, Size: 8}, stages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watermark stage")
	assert.True(t, src.closed)
}

func TestDeliveryHeader(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d := &Delivery{
		Size:          1234,
		PlainSize:     1200,
		ChunkSize:     65536,
		ProductName:   "Widget",
		Release:       domain.Release{Version: "1.2.0", Status: domain.ReleasePublished, CreatedAt: created, UpdatedAt: created.Add(time.Hour)},
		LatestVersion: "1.3.0",
		MainClassName: "com.example.Main",
	}

	h := d.Header()
	assert.Equal(t, "1234", h.Get("Content-Length"))
	assert.Equal(t, "1200", h.Get(api.HeaderFileSize))
	assert.Equal(t, "65536", h.Get(api.HeaderChunkSize))
	assert.Equal(t, "Widget", h.Get(api.HeaderProductName))
	assert.Equal(t, "1.2.0", h.Get(api.HeaderReleaseVersion))
	assert.Equal(t, "PUBLISHED", h.Get(api.HeaderReleaseStatus))
	assert.Equal(t, "2026-03-01T10:00:00Z", h.Get(api.HeaderReleaseCreatedAt))
	assert.Equal(t, "2026-03-01T11:00:00Z", h.Get(api.HeaderReleaseUpdatedAt))
	assert.Equal(t, "1.3.0", h.Get(api.HeaderLatestVersion))
	assert.Equal(t, "com.example.Main", h.Get(api.HeaderMainClassName))

	d.MainClassName = ""
	assert.Empty(t, d.Header().Get(api.HeaderMainClassName))
}

func TestCodeTable(t *testing.T) {
	for _, c := range Codes() {
		assert.NotZero(t, c.HTTPStatus(), c)
		assert.NotEmpty(t, c.Message(), c)
	}
	assert.Equal(t, 200, CodeValid.HTTPStatus())
	assert.Equal(t, 429, CodeRateLimited.HTTPStatus())
	assert.Equal(t, 500, Code("NOPE").HTTPStatus())
	assert.Equal(t, "ABCDE-*****-KLMNO", MaskLicenseKey("ABCDE-12345-FGHIJ-67890-KLMNO"))
}
