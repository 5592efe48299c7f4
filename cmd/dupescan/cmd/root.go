package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"dupescan/internal/cache"
	"dupescan/internal/config"
	"dupescan/internal/logger"
	"dupescan/internal/progress"
	"dupescan/internal/report"
	"dupescan/internal/walker"
)

// maxShownWarnings caps how many warnings are printed after a run.
const maxShownWarnings = 20

var (
	configPath string
	logLevel   string
	logFile    string
	jsonOut    string
	noProgress bool
	noCache    bool
	cacheDir   string

	overrides = struct {
		excluded      []string
		reference     []string
		allowedExt    []string
		excludedExt   []string
		excludedItems []string
		minSize       uint64
		maxSize       uint64
		noRecursive   bool
		sameFS        bool
		threads       int
		deleteOutdate bool
		saveJSONCache bool
	}{}

	cfg       *config.Config
	log       zerolog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "dupescan",
	Short: "Find duplicate files, similar images and broken symlinks",
	Long: `dupescan scans directory trees for wasted space.

It groups identical files by name, size or content hash, clusters visually
similar images by perceptual hash, and lists symlinks whose target is gone.
Files under reference directories are compared against but never touched.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		log, logCloser, err = logger.New(logLevel, logFile)
		if err != nil {
			return err
		}

		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyOverrides(cmd, args)
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, walker.ErrStopped) {
			fmt.Fprintln(os.Stderr, "Search stopped.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "dupescan.yaml", "config file path")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFile, "log-file", "", "also append logs to this file")
	pf.StringVarP(&jsonOut, "json", "o", "", "save the result as JSON to this file")
	pf.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	pf.BoolVar(&noCache, "no-cache", false, "do not read or write hash caches")
	pf.StringVar(&cacheDir, "cache-dir", "", "cache directory (default: user cache dir)")

	pf.StringSliceVarP(&overrides.excluded, "exclude", "e", nil, "excluded directories")
	pf.StringSliceVarP(&overrides.reference, "reference", "r", nil, "reference directories, never modified")
	pf.StringSliceVar(&overrides.allowedExt, "allowed-ext", nil, "only scan these extensions")
	pf.StringSliceVar(&overrides.excludedExt, "excluded-ext", nil, "skip these extensions")
	pf.StringSliceVar(&overrides.excludedItems, "excluded-items", nil, "wildcard patterns of paths to skip")
	pf.Uint64Var(&overrides.minSize, "min-size", 0, "minimal file size in bytes")
	pf.Uint64Var(&overrides.maxSize, "max-size", 0, "maximal file size in bytes")
	pf.BoolVar(&overrides.noRecursive, "no-recursive", false, "do not descend into subdirectories")
	pf.BoolVar(&overrides.sameFS, "same-fs", false, "stay on the filesystem of each included directory")
	pf.IntVarP(&overrides.threads, "threads", "t", 0, "worker count (0 = number of CPUs)")
	pf.BoolVar(&overrides.deleteOutdate, "delete-outdated-cache", true, "drop cache records of files that no longer exist")
	pf.BoolVar(&overrides.saveJSONCache, "save-json-cache", false, "also write caches as JSON")
}

// applyOverrides layers explicitly set flags and positional directories
// over the loaded config.
func applyOverrides(cmd *cobra.Command, args []string) {
	changed := cmd.Flags().Changed

	if len(args) > 0 {
		cfg.Directories.Included = args
	}
	if changed("exclude") {
		cfg.Directories.Excluded = overrides.excluded
	}
	if changed("reference") {
		cfg.Directories.Reference = overrides.reference
	}
	if changed("allowed-ext") {
		cfg.Filters.AllowedExtensions = overrides.allowedExt
	}
	if changed("excluded-ext") {
		cfg.Filters.ExcludedExtensions = overrides.excludedExt
	}
	if changed("excluded-items") {
		cfg.Filters.ExcludedItems = overrides.excludedItems
	}
	if changed("min-size") {
		cfg.Filters.MinimalFileSize = overrides.minSize
	}
	if changed("max-size") {
		cfg.Filters.MaximalFileSize = overrides.maxSize
	}
	if changed("no-recursive") {
		cfg.Filters.Recursive = !overrides.noRecursive
	}
	if changed("same-fs") {
		cfg.Filters.SameFilesystem = overrides.sameFS
	}
	if changed("threads") {
		cfg.Threads = overrides.threads
	}
	if changed("delete-outdated-cache") {
		cfg.Cache.DeleteOutdated = overrides.deleteOutdate
	}
	if changed("save-json-cache") {
		cfg.Cache.SaveJSON = overrides.saveJSONCache
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore returns the cache store, or nil when caching is off or the
// cache directory cannot be determined.
func openStore() *cache.Store {
	if !cfg.Cache.Enabled {
		return nil
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		var err error
		dir, err = cache.DefaultDir()
		if err != nil {
			log.Warn().Err(err).Msg("caching disabled")
			return nil
		}
	}
	return cache.NewStore(afero.NewOsFs(), dir, log)
}

// startProgress returns a sink for progress samples and a function that
// flushes the bar. Both are no-ops when stderr is not a terminal.
func startProgress() (chan<- progress.Data, func()) {
	if noProgress || !progress.IsTerminal() {
		return nil, func() {}
	}
	ch := make(chan progress.Data, 16)
	bar := progress.New(os.Stderr)
	done := make(chan struct{})
	go func() {
		bar.Run(ch)
		close(done)
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func printWarnings(warnings []string) {
	if s := report.FormatWarnings(warnings, maxShownWarnings); s != "" {
		fmt.Fprint(os.Stderr, s)
	}
}

func saveJSON[T any](tool string, result T) error {
	if jsonOut == "" {
		return nil
	}
	if err := report.Save(jsonOut, tool, result); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	fmt.Printf("Report saved to %s\n", jsonOut)
	return nil
}
