package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/jankowtf/raysearch/pkg/vecmath"
)

// HTTPExtractor calls a feature-extraction server that runs the network.
type HTTPExtractor struct {
	opts       Options
	client     *http.Client
	dimensions atomic.Int64
}

// NewHTTPExtractor creates an extractor that connects to opts.URL.
func NewHTTPExtractor(opts Options) (*HTTPExtractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &HTTPExtractor{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
	e.dimensions.Store(int64(opts.Dimensions))
	return e, nil
}

// extractRequest is the request body for /api/embed/image.
type extractRequest struct {
	Model   string         `json:"model"`
	Image   []byte         `json:"image"` // base64 in JSON
	Options extractOptions `json:"options"`
}

type extractOptions struct {
	Size   int        `json:"size"`
	Mean   [3]float64 `json:"mean"`
	Std    [3]float64 `json:"std"`
	Device string     `json:"device,omitempty"`
}

// extractResponse is the response from /api/embed/image.
type extractResponse struct {
	Model     string    `json:"model"`
	Embedding []float32 `json:"embedding"`
}

// extractErrorResponse is the error body returned by the server.
type extractErrorResponse struct {
	Error string `json:"error"`
}

// Embed sends one image to the server and returns its embedding.
func (e *HTTPExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if err := checkImage(image); err != nil {
		return nil, err
	}

	body, err := json.Marshal(extractRequest{
		Model: e.opts.Model,
		Image: image,
		Options: extractOptions{
			Size:   e.opts.ImageSize,
			Mean:   e.opts.Mean,
			Std:    e.opts.Std,
			Device: e.opts.Device,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.URL+"/api/embed/image", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor request failed (is the server running at %s?): %w", e.opts.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp extractErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("extractor error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("extractor returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out extractResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("extractor returned no embedding")
	}
	if err := vecmath.CheckFinite(out.Embedding); err != nil {
		return nil, fmt.Errorf("extractor returned bad embedding: %w", err)
	}

	// The first response fixes the dimension unless it was configured.
	if e.dimensions.CompareAndSwap(0, int64(len(out.Embedding))) {
		return out.Embedding, nil
	}
	if want := int(e.dimensions.Load()); len(out.Embedding) != want {
		return nil, fmt.Errorf("extractor returned %d dimensions, want %d", len(out.Embedding), want)
	}
	return out.Embedding, nil
}

// Dimensions returns the embedding dimension.
// Returns 0 if it was not configured and no image has been embedded yet.
func (e *HTTPExtractor) Dimensions() int {
	return int(e.dimensions.Load())
}

// Fingerprint returns the transform fingerprint of the configured options.
func (e *HTTPExtractor) Fingerprint() string {
	return e.opts.Fingerprint()
}

// Close drops idle connections to the server.
func (e *HTTPExtractor) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// checkImage accepts PNG and JPEG bytes, the formats of the collection.
func checkImage(image []byte) error {
	if len(image) == 0 {
		return ErrEmptyImage
	}
	switch ct := http.DetectContentType(image); ct {
	case "image/png", "image/jpeg":
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, ct)
	}
}
