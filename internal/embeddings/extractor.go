// Package embeddings maps raw images to embedding vectors in the store's space.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyImage is returned when Embed is called with no bytes.
var ErrEmptyImage = errors.New("empty image")

// ErrUnsupportedImage is returned for bytes that are not a PNG or JPEG image.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Extractor produces an embedding for raw image bytes. Identical bytes must
// give identical vectors, in the same space as the stored embeddings.
type Extractor interface {
	// Embed returns the embedding of one encoded image.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// Dimensions returns the embedding dimension, or 0 if not yet known.
	Dimensions() int

	// Fingerprint identifies the model and preprocessing transform.
	// Stores built under a different fingerprint are not comparable.
	Fingerprint() string

	// Close releases resources held by the extractor.
	Close() error
}

// Options configures an extractor. It is created once at process start and
// passed to the constructor; there is no package-level model state.
type Options struct {
	URL        string
	Model      string
	Device     string
	ImageSize  int
	Mean       [3]float64
	Std        [3]float64
	Dimensions int
	Timeout    time.Duration
}

// DefaultOptions returns the ResNet-50 ImageNet preprocessing the stored
// embeddings are built with: 224×224 resize and per-channel normalization.
func DefaultOptions() Options {
	return Options{
		URL:        "http://localhost:8500",
		Model:      "resnet50",
		Device:     "cpu",
		ImageSize:  224,
		Mean:       [3]float64{0.485, 0.456, 0.406},
		Std:        [3]float64{0.229, 0.224, 0.225},
		Dimensions: 2048,
		Timeout:    30 * time.Second,
	}
}

// Validate checks that the transform is well formed.
func (o Options) Validate() error {
	if o.Model == "" {
		return errors.New("extractor model is required")
	}
	if o.ImageSize <= 0 {
		return fmt.Errorf("extractor image size must be positive, got %d", o.ImageSize)
	}
	for i, s := range o.Std {
		if s <= 0 {
			return fmt.Errorf("extractor std[%d] must be positive, got %g", i, s)
		}
	}
	if o.Dimensions < 0 {
		return fmt.Errorf("extractor dimensions must not be negative, got %d", o.Dimensions)
	}
	return nil
}

// Fingerprint renders the parts of the options that change the output vectors.
// Device and timeout do not.
func (o Options) Fingerprint() string {
	var b strings.Builder
	b.WriteString("model=")
	b.WriteString(o.Model)
	b.WriteString(";size=")
	b.WriteString(strconv.Itoa(o.ImageSize))
	b.WriteString(";mean=")
	b.WriteString(joinFloats(o.Mean[:]))
	b.WriteString(";std=")
	b.WriteString(joinFloats(o.Std[:]))
	return b.String()
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
