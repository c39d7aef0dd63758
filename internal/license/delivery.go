package license

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"licensegate/internal/security"
	"licensegate/pkg/contracts"
	api "licensegate/pkg/contracts/api/v1"
	"licensegate/pkg/contracts/domain"
)

// Artifact is a body moving through the delivery stages. Size is the exact
// number of bytes Body yields.
type Artifact struct {
	Body io.ReadCloser
	Size int64
}

// Stage transforms an artifact on its way to the client. Buffered stages
// read the whole input before producing output; the others stream.
type Stage interface {
	Name() string
	Buffered() bool
	Apply(ctx context.Context, in Artifact) (Artifact, error)
}

// applyStages runs stages in order. On failure every body opened so far is
// closed.
func applyStages(ctx context.Context, in Artifact, stages []Stage) (Artifact, error) {
	current := in
	for _, stage := range stages {
		out, err := stage.Apply(ctx, current)
		if err != nil {
			current.Body.Close()
			return Artifact{}, fmt.Errorf("%s stage: %w", stage.Name(), err)
		}
		current = out
	}
	return current, nil
}

// watermarkStage sends the whole artifact to the watermark service
type watermarkStage struct {
	client    Watermarker
	request   WatermarkRequest
	maxBuffer int64
	metrics   *Metrics
}

func (s *watermarkStage) Name() string   { return "watermark" }
func (s *watermarkStage) Buffered() bool { return true }

func (s *watermarkStage) Apply(ctx context.Context, in Artifact) (Artifact, error) {
	defer in.Body.Close()

	if s.maxBuffer > 0 && in.Size > s.maxBuffer {
		return Artifact{}, fmt.Errorf("artifact of %d bytes exceeds watermark buffer of %d", in.Size, s.maxBuffer)
	}

	reader := io.Reader(in.Body)
	if s.maxBuffer > 0 {
		reader = io.LimitReader(in.Body, s.maxBuffer+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	if s.maxBuffer > 0 && int64(len(data)) > s.maxBuffer {
		return Artifact{}, fmt.Errorf("artifact exceeds watermark buffer of %d", s.maxBuffer)
	}

	marked, err := s.client.Embed(ctx, s.request, data)
	if err != nil {
		s.metrics.recordWatermark(ctx, "error")
		return Artifact{}, err
	}
	s.metrics.recordWatermark(ctx, "ok")

	return Artifact{Body: io.NopCloser(bytes.NewReader(marked)), Size: int64(len(marked))}, nil
}

// encryptStage frames the artifact with the chunked AEAD codec
type encryptStage struct {
	sessionKey []byte
	chunkSize  int
}

func (s *encryptStage) Name() string   { return "encrypt" }
func (s *encryptStage) Buffered() bool { return false }

func (s *encryptStage) Apply(ctx context.Context, in Artifact) (Artifact, error) {
	enc, err := security.NewStreamEncrypter(in.Body, s.sessionKey, s.chunkSize)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Body: readCloser{Reader: enc, Closer: in.Body},
		Size: security.EncodedSize(in.Size, s.chunkSize),
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Delivery is an admitted download. Body yields exactly Size bytes of AEAD
// frames and must be closed by the caller.
type Delivery struct {
	Verdict Verdict
	Body    io.ReadCloser
	Size    int64

	PlainSize     int64
	ChunkSize     int
	Watermarked   bool
	ProductName   string
	Release       domain.Release
	LatestVersion string
	MainClassName string
}

// Header returns the out-of-band metadata sent with the stream
func (d *Delivery) Header() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	h.Set(api.HeaderFileSize, strconv.FormatInt(d.PlainSize, 10))
	h.Set(api.HeaderEncodedSize, strconv.FormatInt(d.Size, 10))
	h.Set(api.HeaderChunkSize, strconv.Itoa(d.ChunkSize))
	h.Set(api.HeaderStreamFormat, contracts.StreamFormatVersion)
	h.Set(api.HeaderProductName, d.ProductName)
	h.Set(api.HeaderReleaseVersion, d.Release.Version)
	h.Set(api.HeaderReleaseStatus, string(d.Release.Status))
	h.Set(api.HeaderReleaseCreatedAt, d.Release.CreatedAt.UTC().Format(time.RFC3339))
	h.Set(api.HeaderReleaseUpdatedAt, d.Release.UpdatedAt.UTC().Format(time.RFC3339))
	if d.LatestVersion != "" {
		h.Set(api.HeaderLatestVersion, d.LatestVersion)
	}
	if d.MainClassName != "" {
		h.Set(api.HeaderMainClassName, d.MainClassName)
	}
	return h
}
