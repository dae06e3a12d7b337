package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jankowtf/raysearch/internal/config"
	"github.com/jankowtf/raysearch/internal/index"
	"github.com/jankowtf/raysearch/internal/query"
	"github.com/jankowtf/raysearch/internal/search"
	"github.com/jankowtf/raysearch/internal/storage"
	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the collection by keyword or by example image",
		Long: `Search ranks the collection and prints the best matches.

Examples:
  raysearch search text chest fracture
  raysearch search image ./query.png --min-similarity 0.4 --sort name
  raysearch search text dental --format json --output results.json`,
	}

	flags := cmd.PersistentFlags()
	flags.Int("top-k", 0, "Number of candidates to rank (default from config)")
	flags.Float64("min-similarity", 0, "Drop results scoring below this (default from config)")
	flags.String("sort", "", "Sort results by score or name (default from config)")
	flags.Int("limit", 0, "Maximum number of results shown (default from config)")
	flags.String("format", "text", "Output format: text, json, csv, markdown")
	flags.String("output", "", "Write results to a file instead of stdout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "text <query...>",
			Short: "Rank images by TF-IDF similarity of their category to a keyword",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSearch(cmd, query.Request{Text: strings.Join(args, " ")})
			},
		},
		&cobra.Command{
			Use:   "image <file>",
			Short: "Rank images by visual similarity to an example image",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("reading query image: %w", err)
				}
				return runSearch(cmd, query.Request{Image: data})
			},
		},
	)
	return cmd
}

func runSearch(cmd *cobra.Command, req query.Request) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySearchFlags(cmd, &req); err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if _, ok := exporters[format]; !ok {
		return fmt.Errorf("unsupported format %q (use text, json, csv, or markdown)", format)
	}

	ctx := cmd.Context()
	isText := req.Text != ""

	// The catalog is required for text search and only decorates image results.
	catalog, err := storage.LoadCatalog(cfg.Dataset.Metadata)
	if err != nil {
		if isText {
			return err
		}
		slog.Warn("metadata unavailable, categories not shown", "error", err)
	}

	engineCfg := query.EngineConfig{
		Timeout:     time.Duration(cfg.Extractor.Timeout),
		TextPolicy:  policyOf(cfg.Search.Text),
		ImagePolicy: policyOf(cfg.Search.Image),
		Logger:      slog.Default(),
	}
	if isText {
		engineCfg.Text = search.BuildTextIndex(catalog.Corpus())
	} else {
		storePath, err := cfg.EmbeddingsPath()
		if err != nil {
			return fmt.Errorf("getting store path: %w", err)
		}
		store, err := storage.LoadStore(storePath)
		if err != nil {
			return fmt.Errorf("%w (run 'raysearch build' first)", err)
		}
		extractor, err := openExtractor(cfg)
		if err != nil {
			return err
		}
		defer extractor.Close()
		engineCfg.Store = store
		engineCfg.Extractor = extractor
	}

	engine := query.NewEngine(engineCfg)
	results, err := engine.Search(ctx, req)
	if err != nil {
		return err
	}
	if isText {
		printSuggestions(cmd.ErrOrStderr(), engine.TextIndex(), req.Text)
	}

	rows := buildRows(ctx, cfg, catalog, results)

	w := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return exporters[format](w, rows)
}

// applySearchFlags copies explicitly set flags into req.
func applySearchFlags(cmd *cobra.Command, req *query.Request) error {
	flags := cmd.Flags()
	req.TopK, _ = flags.GetInt("top-k")
	req.Limit, _ = flags.GetInt("limit")
	if flags.Changed("min-similarity") {
		v, _ := flags.GetFloat64("min-similarity")
		req.MinSimilarity = &v
	}
	if s, _ := flags.GetString("sort"); s != "" {
		mode, err := query.ParseSortMode(s)
		if err != nil {
			return err
		}
		req.Sort = mode
	}
	return nil
}

// printSuggestions hints at vocabulary terms close to unknown query terms.
func printSuggestions(w io.Writer, text *search.TextIndex, q string) {
	unknown, err := text.UnknownTerms(q)
	if err != nil {
		return
	}
	for _, term := range unknown {
		if s := text.Suggest(term, 3); len(s) > 0 {
			fmt.Fprintf(w, "No category contains %q. Did you mean: %s?\n", term, strings.Join(s, ", "))
		}
	}
}

// buildRows attaches categories and file paths to results. Paths are looked
// up best-effort; a missing dataset directory leaves them empty.
func buildRows(ctx context.Context, cfg *config.Config, catalog *storage.Catalog, results storage.SearchResults) []exportRow {
	resolver, err := index.NewResolver(ctx, cfg.Dataset.Dir, cfg.Dataset.Extensions)
	if err != nil {
		slog.Debug("dataset directory unavailable, paths not shown", "error", err)
	}

	rows := make([]exportRow, 0, len(results))
	for i, r := range results {
		row := exportRow{Rank: i + 1, ID: r.ID, Score: r.Score}
		if catalog != nil {
			if item, ok := catalog.Get(r.ID); ok {
				row.Category = item.Category
			}
		}
		if resolver != nil {
			row.Path, _ = resolver.Lookup(r.ID)
		}
		rows = append(rows, row)
	}
	return rows
}

func policyOf(p config.PolicyConfig) query.Policy {
	mode, err := query.ParseSortMode(p.Sort)
	if err != nil {
		mode = query.SortByScore
	}
	return query.Policy{
		TopK:          p.TopK,
		MinSimilarity: p.MinSimilarity,
		Sort:          mode,
		Limit:         p.Limit,
	}
}
