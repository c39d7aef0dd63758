package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"licensegate/internal/config"
	"licensegate/internal/license"
	"licensegate/pkg/contracts/domain"
)

const embedPath = "/watermark/embed"

// Header names understood by the watermark service
const (
	HeaderMethods        = "X-Watermark-Methods"
	HeaderDensityPool    = "X-Watermark-Density-Constant-Pool"
	HeaderDensityDynamic = "X-Watermark-Density-Dynamic-Bytecode"
	HeaderDensityTemp    = "X-Watermark-Density-Temporal-Attribute"
	HeaderTag            = "X-Watermark-Tag"
	HeaderToken          = "X-Watermark-Token"
)

// Method names sent in HeaderMethods
const (
	MethodConstantPool      = "STATIC_CONSTANT_POOL"
	MethodDynamicBytecode   = "DYNAMIC_BYTECODE"
	MethodTemporalAttribute = "TEMPORAL_ATTRIBUTE"
)

// maxResponse bounds the bytes read from an error response body
const maxResponse = 4 << 10

var (
	// ErrUnexpectedStatus is returned for any non-2xx answer
	ErrUnexpectedStatus = errors.New("watermark: unexpected status")
	// ErrNoMethods is returned when the settings enable no embedding method
	ErrNoMethods = errors.New("watermark: no embedding method enabled")
)

// Client calls the watermark service
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

var _ license.Watermarker = (*Client)(nil)

// NewClient creates a client for the configured service URL
func NewClient(cfg config.WatermarkConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 200 * time.Millisecond
			eb.MaxInterval = 5 * time.Second
			return eb
		},
		logger: logger.With(slog.String("component", "watermark")),
	}
}

// Embed uploads the artifact and returns the watermarked bytes. Transport
// errors and 5xx answers are retried up to the configured limit.
func (c *Client) Embed(ctx context.Context, req license.WatermarkRequest, artifact []byte) ([]byte, error) {
	methods := Methods(req.Settings)
	if len(methods) == 0 {
		return nil, ErrNoMethods
	}

	body, contentType, err := multipartBody(req.FileName, artifact)
	if err != nil {
		return nil, err
	}

	var out []byte
	attempt := 0
	operation := func() error {
		attempt++
		out, err = c.post(ctx, req, methods, body, contentType)
		if err != nil && attempt > 1 {
			c.logger.WarnContext(ctx, "watermark attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.WithContext(c.newBackOff(), ctx), c.maxRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("embed %s: %w", req.FileName, err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, req license.WatermarkRequest, methods []string, body []byte, contentType string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+embedPath, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(HeaderMethods, strings.Join(methods, ","))
	httpReq.Header.Set(HeaderTag, req.Tag)
	httpReq.Header.Set(HeaderToken, req.Token)
	s := req.Settings
	if s.StaticConstantPool {
		httpReq.Header.Set(HeaderDensityPool, strconv.Itoa(s.StaticConstantPoolDensity))
	}
	if s.DynamicBytecode {
		httpReq.Header.Set(HeaderDensityDynamic, strconv.Itoa(s.DynamicBytecodeDensity))
	}
	if s.TemporalAttribute {
		httpReq.Header.Set(HeaderDensityTemp, strconv.Itoa(s.TemporalAttributeDensity))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
		statusErr := fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read watermark response: %w", err)
	}
	return out, nil
}

// Methods lists the enabled embedding methods in a stable order
func Methods(s domain.WatermarkSettings) []string {
	var methods []string
	if s.StaticConstantPool {
		methods = append(methods, MethodConstantPool)
	}
	if s.DynamicBytecode {
		methods = append(methods, MethodDynamicBytecode)
	}
	if s.TemporalAttribute {
		methods = append(methods, MethodTemporalAttribute)
	}
	return methods
}

func multipartBody(fileName string, artifact []byte) ([]byte, string, error) {
	if fileName == "" {
		fileName = "artifact.jar"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(artifact); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
