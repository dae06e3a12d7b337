package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/jankowtf/raysearch/internal/config"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "raysearch",
		Short: "Search an X-ray image collection by keyword or by example image",
		Long: `raysearch finds images in a labelled collection.

Text queries are matched against the category labels with TF-IDF.
Image queries are embedded with the configured feature extractor and ranked
by cosine similarity against the prebuilt embedding store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default is the user config dir)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newBuildCmd(),
		newSearchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "raysearch %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				if err := cfg.Save(); err != nil {
					return fmt.Errorf("saving config: %w", err)
				}
				path, _ = config.ConfigPath()
			} else if err := cfg.SaveFile(path); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to: %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(initCmd)
	return cmd
}

// loadConfig reads the config named by --config, or the default location,
// and installs the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.Logging.SlogLevel()
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), level))
	return cfg, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// consoleProgressReporter prints build progress to the console. Builder
// workers call it concurrently, so every write holds mu.
type consoleProgressReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *consoleProgressReporter) OnStart(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "Embedding %d images\n", total)
}

func (r *consoleProgressReporter) OnProgress(current, total int, id string) {
	// Print progress every 10 images or at the end
	if current%10 != 0 && current != total {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "\r  [%d/%d] %s", current, total, truncatePath(id, 50))
}

func (r *consoleProgressReporter) OnComplete(embedded, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "\r  Completed: %d embedded, %d skipped\n", embedded, skipped)
}

func (r *consoleProgressReporter) OnError(id string, err error) {
	// Skipped images are already logged by the builder.
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path + " "
	}
	return "..." + path[len(path)-maxLen+3:] + " "
}
