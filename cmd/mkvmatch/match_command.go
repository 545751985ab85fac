package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mkvmatch/internal/asr"
	"mkvmatch/internal/audio"
	"mkvmatch/internal/cache"
	"mkvmatch/internal/config"
	"mkvmatch/internal/engine"
	"mkvmatch/internal/logging"
	"mkvmatch/internal/matcher"
	"mkvmatch/internal/model"
	"mkvmatch/internal/reference"
	"mkvmatch/internal/rename"
	"mkvmatch/internal/subtitle"
)

func newMatchCommand(configFlag *string) *cobra.Command {
	var (
		seasonFlag     int
		dryRunFlag     bool
		outputDirFlag  string
		confidenceFlag float64
		recursiveFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "match <path>",
		Short: "Identify episodes under path by matching dialogue against reference subtitles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			eng, cleanup, err := buildEngine(logger, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := engine.Options{
				Recursive: recursiveFlag,
				DryRun:    dryRunFlag,
				OutputDir: outputDirFlag,
				ShowDir:   cfg.ShowDir,
				PhaseCB: func(phase, message string) {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", phase, message)
				},
				ProgressCB: func(current, total int, filename string) {
					fmt.Fprintf(cmd.OutOrStdout(), "(%d/%d) %s\n", current, total, filepath.Base(filename))
				},
			}
			if cmd.Flags().Changed("season") {
				opts.SeasonOverride = &seasonFlag
			}
			if cmd.Flags().Changed("min-confidence") {
				opts.MinConfidence = &confidenceFlag
			}

			start := time.Now()
			results, failures := eng.Process(context.Background(), args[0], opts)
			renderResults(cmd, results, failures)
			fmt.Fprintf(cmd.OutOrStdout(), "\nmatched %d, failed %d in %s\n",
				len(results), len(failures), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&seasonFlag, "season", 0, "Force this season number for every video under path")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Match without renaming files")
	cmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "Copy matched files here instead of renaming in place")
	cmd.Flags().Float64Var(&confidenceFlag, "min-confidence", 0, "Override the configured confidence floor")
	cmd.Flags().BoolVarP(&recursiveFlag, "recursive", "r", false, "Recurse into subdirectories")

	return cmd
}

// buildEngine wires the configured ASR backend, subtitle provider, matcher,
// renamer, and cache into an Engine, the way the teacher's daemon bootstrap
// assembles its services from one loaded Config. The returned cleanup
// closes anything buildEngine opened (the download ledger, if any).
func buildEngine(logger *slog.Logger, cfg *config.Config) (*engine.Engine, func(), error) {
	noop := func() {}

	provider, err := buildASRProvider(context.Background(), logger, cfg)
	if err != nil {
		return nil, noop, err
	}

	subtitles, cleanup, err := buildSubtitleProvider(logger, cfg)
	if err != nil {
		return nil, noop, err
	}

	chunker := audio.NewChunker(logger)
	reader := subtitle.NewReader(logger)
	memCache := cache.New(cfg.CacheMaxItems, cfg.CacheMaxMemoryBytes, cache.WithLogger(logger))

	m := matcher.NewMatcher(logger, chunker, provider, &cachingReader{inner: reader, cache: memCache}, filepath.Join(os.TempDir(), "mkvmatch"))
	renamer := rename.NewRenamer(logger)
	cachedSubs := &cachingSubtitleProvider{inner: subtitles, cache: memCache}

	eng := engine.New(logger, cachedSubs, m, renamer, cfg.MinConfidence)
	return eng, cleanup, nil
}

// buildASRProvider resolves the configured ASR backend through the
// process-wide registry, so repeated CLI invocations in the same process
// (tests, a future daemon mode) never pay the load cost twice.
func buildASRProvider(ctx context.Context, logger *slog.Logger, cfg *config.Config) (asr.Provider, error) {
	key := asr.Key{Backend: cfg.ASRProvider, Model: cfg.ASRModel, Device: cfg.ASRDevice}
	return asr.DefaultRegistry.GetOrLoad(ctx, key, func() asr.Provider {
		switch cfg.ASRProvider {
		case "http":
			return asr.NewHTTPProvider(logger, cfg.ASRBaseURL, cfg.ASRAPIKey, cfg.ASRModel, cfg.ASRLanguage)
		default:
			return asr.NewWhisperProvider(logger, cfg.ASRBinary, cfg.ASRModel, cfg.ASRDevice, cfg.ASRLanguage)
		}
	})
}

// buildSubtitleProvider assembles the composite local/remote subtitle
// provider per cfg.SubProvider. The ledger is only opened when a remote
// backend is configured.
func buildSubtitleProvider(logger *slog.Logger, cfg *config.Config) (*reference.CompositeProvider, func(), error) {
	local := reference.NewLocalProvider(logger, cfg.CacheDir)
	if cfg.SubProvider != "remote" {
		return reference.NewCompositeProvider(local, nil), func() {}, nil
	}

	ledgerPath := filepath.Join(cfg.CacheDir, "downloads.db")
	ledger, err := reference.OpenLedger(ledgerPath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open download ledger: %w", err)
	}
	remote := reference.NewRemoteProvider(logger, cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteUserAgent, cfg.RemoteLanguages, cfg.CacheDir, ledger)
	return reference.NewCompositeProvider(local, remote), func() { _ = ledger.Close() }, nil
}

// cachingSubtitleProvider wraps a SubtitleProvider with C11's Cache,
// keyed by "series/season" the way the matcher needs lookups to key.
type cachingSubtitleProvider struct {
	inner interface {
		Get(ctx context.Context, series string, season int) []model.SubtitleFile
	}
	cache *cache.Cache
}

func (c *cachingSubtitleProvider) Get(ctx context.Context, series string, season int) []model.SubtitleFile {
	key := fmt.Sprintf("%s/%d", series, season)
	if cached, ok := c.cache.GetSubtitles(key); ok {
		return cached
	}
	result := c.inner.Get(ctx, series, season)
	if len(result) > 0 {
		c.cache.PutSubtitles(key, result)
	}
	return result
}

// cachingReader wraps the SubtitleReader with C11's Cache, keyed by path.
type cachingReader struct {
	inner interface {
		Read(path string) (string, error)
	}
	cache *cache.Cache
}

func (c *cachingReader) Read(path string) (string, error) {
	if content, ok := c.cache.GetContent(path); ok {
		return content, nil
	}
	content, err := c.inner.Read(path)
	if err != nil {
		return "", err
	}
	c.cache.PutContent(path, content)
	return content, nil
}
