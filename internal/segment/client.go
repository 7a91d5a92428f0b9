// Package segment talks to an HTTP background segmentation model. The
// endpoint accepts a PNG body and answers with a PNG of the same size whose
// alpha channel masks out the background.
package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/transform"
)

const maxResponseBytes = 64 << 20

type Config struct {
	Endpoint       string
	Token          string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	endpoint       string
	token          string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ transform.Segmenter = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		endpoint:       strings.TrimSpace(cfg.Endpoint),
		token:          strings.TrimSpace(cfg.Token),
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// Available reports whether a model endpoint is configured.
func (c *Client) Available() bool {
	return c != nil && c.endpoint != ""
}

func (c *Client) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	if !c.Available() {
		return nil, transform.ErrModelUnavailable
	}

	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode segmentation input: %w", err)
	}

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, retry, err := c.post(ctx, body.Bytes())
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retry || attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return nil, fmt.Errorf("segmentation failed: %w", lastErr)
}

// post performs one attempt. The boolean reports whether the failure is worth
// retrying.
func (c *Client) post(ctx context.Context, payload []byte) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build segmentation request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("model returned status=%d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read segmentation response: %w", err)
	}
	out, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, errors.Join(errors.New("decode segmentation response"), err)
	}
	return out, false, nil
}
