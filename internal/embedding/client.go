package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dishcovery/dishcovery/internal/pkg/errors"
)

// externalEncoder abstracts the external embedding service for testing.
type externalEncoder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Client calls the external embedding service over HTTP.
type Client struct {
	url        string
	dim        int
	version    string
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an external embedding service client.
func NewClient(cfg ServiceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &Client{
		url:        cfg.ExternalURL,
		dim:        cfg.ExternalDim,
		version:    cfg.ExternalVersion,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    100,
				MaxConnsPerHost: 100,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		limiter: limiter,
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Version string      `json:"version,omitempty"`
}

// EmbedBatch embeds one batch of canonical feature texts, retrying
// transient failures up to the configured bound. Order is preserved.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		vectors, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		// Dimension mismatches will not heal on retry.
		if errors.IsCode(err, errors.CodeEmbeddingDimMismatch) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, errors.InternalError("marshaling embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.InternalError("building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.UpstreamUnavailableError("embedding service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, errors.UpstreamUnavailableError("embedding service",
			fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.UpstreamUnavailableError("embedding service", err)
	}

	if len(parsed.Vectors) != len(texts) {
		return nil, errors.UpstreamUnavailableError("embedding service",
			fmt.Errorf("expected %d vectors, got %d", len(texts), len(parsed.Vectors)))
	}

	// A service-side version bump invalidates the configured space.
	if parsed.Version != "" && parsed.Version != c.version {
		return nil, errors.UpstreamUnavailableError("embedding service",
			fmt.Errorf("service version %q does not match configured %q", parsed.Version, c.version))
	}

	for _, v := range parsed.Vectors {
		if len(v) != c.dim {
			return nil, errors.EmbeddingDimMismatchError(c.dim, len(v))
		}
	}

	return parsed.Vectors, nil
}
