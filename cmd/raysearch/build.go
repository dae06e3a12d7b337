package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jankowtf/raysearch/internal/config"
	"github.com/jankowtf/raysearch/internal/embeddings"
	"github.com/jankowtf/raysearch/internal/index"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed every catalog image and write the embedding store",
		Long: `Reads the metadata table, finds each listed image under the dataset
directory, embeds it with the feature extractor and writes the store.

Examples:
  raysearch build
  raysearch build --dataset ./Dataset --metadata ./metadata/xray.csv
  raysearch build --watch`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}

	cmd.Flags().Bool("watch", false, "Rebuild when the dataset or metadata changes")
	cmd.Flags().Int("workers", 0, "Number of parallel extractor calls (overrides config)")
	cmd.Flags().String("dataset", "", "Dataset directory (overrides config)")
	cmd.Flags().String("metadata", "", "Metadata CSV (overrides config)")
	cmd.Flags().String("output", "", "Embedding store path (overrides config)")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("dataset"); v != "" {
		cfg.Dataset.Dir = v
	}
	if v, _ := cmd.Flags().GetString("metadata"); v != "" {
		cfg.Dataset.Metadata = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Storage.Embeddings = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		cfg.Indexing.Workers = v
	}
	watch, _ := cmd.Flags().GetBool("watch")
	watch = watch || cfg.Indexing.Watch

	outPath, err := cfg.EmbeddingsPath()
	if err != nil {
		return fmt.Errorf("getting store path: %w", err)
	}

	extractor, err := openExtractor(cfg)
	if err != nil {
		return err
	}
	defer extractor.Close()

	builder := index.NewBuilder(index.BuildConfig{
		CatalogPath: cfg.Dataset.Metadata,
		DatasetDir:  cfg.Dataset.Dir,
		Extensions:  cfg.Dataset.Extensions,
		OutputPath:  outPath,
		Model:       cfg.Extractor.Model,
		Workers:     cfg.Indexing.Workers,
	}, extractor)
	builder.SetProgressReporter(&consoleProgressReporter{w: cmd.ErrOrStderr()})
	builder.SetLogger(slog.Default())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	stats, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nBuild complete:\n")
	fmt.Fprintf(out, "  Catalog items: %d\n", stats.Total)
	fmt.Fprintf(out, "  Embedded:      %d\n", stats.Embedded)
	fmt.Fprintf(out, "  Skipped:       %d\n", stats.Skipped)
	fmt.Fprintf(out, "  Store:         %s\n", outPath)
	fmt.Fprintf(out, "  Took:          %s\n", time.Since(start).Round(time.Millisecond))

	if watch {
		return startWatching(ctx, cmd, builder)
	}
	return nil
}

func startWatching(ctx context.Context, cmd *cobra.Command, builder *index.Builder) error {
	watcher, err := index.NewWatcher(builder)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	out := cmd.OutOrStdout()
	watcher.OnRebuild(func(stats *index.Stats, err error) {
		if err == nil {
			fmt.Fprintf(out, "Rebuilt store: %d embedded, %d skipped\n", stats.Embedded, stats.Skipped)
		}
	})

	bc := builder.Config()
	fmt.Fprintf(out, "Watching for changes (Ctrl+C to stop)...\n")
	fmt.Fprintf(out, "  %s\n  %s\n", bc.DatasetDir, bc.CatalogPath)

	return watcher.Start(ctx)
}

// openExtractor creates the configured extractor, wrapped in the embedding
// cache when enabled. A cache that cannot be opened is skipped.
func openExtractor(cfg *config.Config) (embeddings.Extractor, error) {
	httpExt, err := embeddings.NewHTTPExtractor(extractorOptions(cfg.Extractor))
	if err != nil {
		return nil, fmt.Errorf("configuring extractor: %w", err)
	}
	if !cfg.Extractor.Cache {
		return httpExt, nil
	}

	cachePath, err := cfg.CachePath()
	if err == nil {
		var cached *embeddings.CachedExtractor
		if cached, err = embeddings.NewCachedExtractor(httpExt, cachePath); err == nil {
			return cached, nil
		}
	}
	slog.Warn("embedding cache unavailable", "error", err)
	return httpExt, nil
}

func extractorOptions(c config.ExtractorConfig) embeddings.Options {
	return embeddings.Options{
		URL:        c.URL,
		Model:      c.Model,
		Device:     c.Device,
		ImageSize:  c.ImageSize,
		Mean:       c.Mean,
		Std:        c.Std,
		Dimensions: c.Dimensions,
		Timeout:    time.Duration(c.Timeout),
	}
}
