// Package cli implements the command-line interface for skedits.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/cache"
	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/config"
	"github.com/kilupskalvis/skedits/internal/core"
	"github.com/kilupskalvis/skedits/internal/models"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config   *config.Config
	Logger   *slog.Logger
	Service  chunkedgraph.Service
	Cache    *cache.Cache
	Synapses *annotation.SQLiteStore

	cacheStore cache.Store
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.cacheStore != nil {
		c.cacheStore.Close()
	}
	if c.Synapses != nil {
		c.Synapses.Close()
	}
}

// initContext loads the config and builds the logger and service client.
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	logger := NewLogger(level, format, os.Stderr)
	slog.SetDefault(logger)

	retry, err := cfg.RetryConfig()
	if err != nil {
		exitError("%v", err)
	}
	if cfg.Service.URL == "" {
		exitError("service.url is not configured")
	}
	svc := chunkedgraph.NewCachingClient(
		chunkedgraph.NewRetryClient(
			chunkedgraph.NewHTTPClient(cfg.Service.URL, cfg.Service.Table, cfg.Service.Token),
			retry,
			logger,
		),
	)

	return &cmdContext{Config: cfg, Logger: logger, Service: svc}
}

// initFullContext also opens the artifact cache and the synapse table.
func initFullContext() *cmdContext {
	c := initContext()

	store, err := openCacheStore(c.Config)
	if err != nil {
		c.Close()
		exitError("failed to open cache: %v", err)
	}
	c.cacheStore = store

	opts := cache.Options{UseCache: c.Config.Cache.UseCache, ForceRecompute: c.Config.Cache.ForceRecompute}
	if noCache {
		opts.UseCache = false
	}
	if forceRecompute {
		opts.ForceRecompute = true
	}
	c.Cache = cache.New(store, opts)

	syn, err := annotation.Open(c.Config.AnnotationPath())
	if err != nil {
		c.Close()
		exitError("failed to open synapse table: %v", err)
	}
	c.Synapses = syn
	if err := syn.Initialize(); err != nil {
		c.Close()
		exitError("%v", err)
	}
	return c
}

func openCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "fs":
		return cache.NewFSStore(cfg.CachePath())
	case "redis":
		return cache.NewRedisStore(cfg.Cache.RedisURL, "skedits:")
	default:
		return cache.NewBboltStore(cfg.CachePath())
	}
}

func (c *cmdContext) analyzeOptions(withPositions bool) core.AnalyzeOptions {
	return core.AnalyzeOptions{
		ChangeLog:     core.ChangeLogOptions{BatchSize: c.Config.Service.BatchSize, Logger: c.Logger},
		WithPositions: withPositions,
		Logger:        c.Logger,
	}
}

var rootCmd = &cobra.Command{
	Use:   "skedits",
	Short: "Segment edit history analysis",
	Long: `skedits reconstructs the edit history of a proofread neuron segment from
its change log: per-edit level-2 graph deltas, meta-operations, verified
replays and sequences of intermediate states with their synapses.`,
}

var (
	logLevel       string
	logFormat      string
	noCache        bool
	forceRecompute bool
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, text)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Do not read or write cached artifacts")
	rootCmd.PersistentFlags().BoolVar(&forceRecompute, "force", false, "Recompute and replace cached artifacts")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(deltasCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(dropoutCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(synapsesCmd)
	rootCmd.AddCommand(completionCmd)
}

// NewLogger builds a slog logger writing to w. Unknown levels mean info and
// any format other than json means text.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func parseRoot(s string) (models.SegmentID, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid segment id %q", s)
	}
	return models.SegmentID(id), nil
}

func mustParseRoot(s string) models.SegmentID {
	id, err := parseRoot(s)
	if err != nil {
		exitError("%v", err)
	}
	return id
}
