// Package index builds the persisted embedding store from the image
// collection and keeps it current.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jankowtf/raysearch/internal/embeddings"
	"github.com/jankowtf/raysearch/internal/storage"
	"github.com/jankowtf/raysearch/pkg/vecmath"
)

// ErrNothingEmbedded is returned when no catalog item could be embedded.
var ErrNothingEmbedded = errors.New("no images were embedded")

// BuildConfig names the inputs and output of a build.
type BuildConfig struct {
	CatalogPath string
	DatasetDir  string
	Extensions  []string
	OutputPath  string
	Model       string
	Workers     int
}

// Builder embeds every catalog image and writes the embedding store.
type Builder struct {
	cfg       BuildConfig
	extractor embeddings.Extractor
	progress  ProgressReporter
	logger    *slog.Logger
}

// ProgressReporter receives progress updates during a build.
type ProgressReporter interface {
	OnStart(total int)
	OnProgress(current int, total int, id string)
	OnComplete(embedded int, skipped int)
	OnError(id string, err error)
}

// Stats contains build statistics.
type Stats struct {
	Total    int64
	Embedded int64
	Skipped  int64
}

// NewBuilder creates a builder that embeds with extractor.
func NewBuilder(cfg BuildConfig, extractor embeddings.Extractor) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	return &Builder{
		cfg:       cfg,
		extractor: extractor,
		progress:  &NoopProgressReporter{},
		logger:    slog.Default(),
	}
}

// SetProgressReporter sets the progress reporter.
func (b *Builder) SetProgressReporter(pr ProgressReporter) {
	if pr == nil {
		pr = &NoopProgressReporter{}
	}
	b.progress = pr
}

// SetLogger sets the logger used for skipped items.
func (b *Builder) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Config returns the builder's configuration.
func (b *Builder) Config() BuildConfig { return b.cfg }

// Build reads the catalog, resolves and embeds each image, and writes the
// store. Items that cannot be resolved, read or embedded are skipped. The
// store keeps catalog order.
func (b *Builder) Build(ctx context.Context) (*Stats, error) {
	catalog, err := storage.LoadCatalog(b.cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(ctx, b.cfg.DatasetDir, b.cfg.Extensions)
	if err != nil {
		return nil, err
	}

	items := catalog.Items()
	stats := &Stats{Total: int64(len(items))}
	b.progress.OnStart(len(items))

	vectors := make([][]float32, len(items))
	jobs := make(chan int, b.cfg.Workers*2)
	var wg sync.WaitGroup
	var processed int64

	for w := 0; w < b.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				id := items[i].ImageName
				current := atomic.AddInt64(&processed, 1)
				b.progress.OnProgress(int(current), len(items), id)

				vec, err := b.embedItem(ctx, resolver, id)
				if err != nil {
					b.logger.Warn("skipping image", "image", id, "reason", err)
					b.progress.OnError(id, err)
					atomic.AddInt64(&stats.Skipped, 1)
					continue
				}
				vectors[i] = vec
			}
		}()
	}

	for i := range items {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return stats, ctx.Err()
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	ids := make([]string, 0, len(items))
	kept := make([][]float32, 0, len(items))
	for i, v := range vectors {
		if v == nil {
			continue
		}
		ids = append(ids, items[i].ImageName)
		kept = append(kept, v)
	}
	stats.Embedded = int64(len(ids))
	b.progress.OnComplete(int(stats.Embedded), int(stats.Skipped))

	if len(ids) == 0 {
		return stats, ErrNothingEmbedded
	}

	meta := storage.Meta{Model: b.cfg.Model, Transform: b.extractor.Fingerprint()}
	if err := storage.WriteStore(b.cfg.OutputPath, ids, kept, meta); err != nil {
		return stats, err
	}
	b.logger.Info("embedding store written",
		"path", b.cfg.OutputPath, "images", len(ids), "skipped", stats.Skipped, "dim", len(kept[0]))
	return stats, nil
}

// embedItem returns a vector that will survive normalization on load.
func (b *Builder) embedItem(ctx context.Context, resolver *Resolver, id string) ([]float32, error) {
	path, ok := resolver.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("not found under %s", resolver.Root())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	vec, err := b.extractor.Embed(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if err := vecmath.CheckFinite(vec); err != nil {
		return nil, err
	}
	if vecmath.Norm(vec) == 0 {
		return nil, vecmath.ErrDegenerateVector
	}
	return vec, nil
}

// NoopProgressReporter is a no-op progress reporter.
type NoopProgressReporter struct{}

func (n *NoopProgressReporter) OnStart(total int)                        {}
func (n *NoopProgressReporter) OnProgress(current, total int, id string) {}
func (n *NoopProgressReporter) OnComplete(embedded, skipped int)         {}
func (n *NoopProgressReporter) OnError(id string, err error)             {}
