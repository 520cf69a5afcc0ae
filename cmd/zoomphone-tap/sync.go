package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/auth"
	"github.com/Sternrassler/zoomphone-tap/pkg/cache"
	"github.com/Sternrassler/zoomphone-tap/pkg/client"
	"github.com/Sternrassler/zoomphone-tap/pkg/config"
	"github.com/Sternrassler/zoomphone-tap/pkg/logging"
	"github.com/Sternrassler/zoomphone-tap/pkg/ratelimit"
	"github.com/Sternrassler/zoomphone-tap/pkg/sink"
	"github.com/Sternrassler/zoomphone-tap/pkg/state"
	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
	"github.com/Sternrassler/zoomphone-tap/pkg/tap"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newSyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the selected streams",
		Long: `Sync pages through the selected streams and writes Singer messages to
stdout (or the configured output). Incremental streams resume from the
saved bookmarks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, opts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	syncer, err := wire(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer syncer.close()

	status := &syncStatus{}
	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics.Addr, status, logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer stop()
	}

	status.running.Store(true)
	summary, err := syncer.tap.Run(ctx)
	status.running.Store(false)
	status.runID.Store(summary.RunID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(summary.Records))
	for name := range summary.Records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.PrintErrf("%s: %d records\n", name, summary.Records[name])
	}
	cmd.PrintErrf("Run %s finished in %s\n", summary.RunID, summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	return nil
}

// applyFlags lets command line flags win over the file and environment.
func applyFlags(cfg *config.Config, opts *options) {
	if len(opts.streams) > 0 {
		cfg.Streams = opts.streams
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.pretty {
		cfg.Logging.Pretty = true
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.outputPath != "" {
		cfg.Output.Path = opts.outputPath
	}
}

// deps are the components of one sync, closed in reverse order.
type deps struct {
	tap     *tap.Tap
	closers []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// wire builds the tap from cfg. Records go to stdout unless an output path
// is configured.
func wire(ctx context.Context, cfg *config.Config, stdout io.Writer, logger zerolog.Logger) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(cfg.Redis.Options())
		d.closers = append(d.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("Connected to Redis")
	}

	tokens, err := auth.NewTokenSource(auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AccountID:    cfg.AccountID,
		TokenURL:     cfg.AuthURL,
	}, logger)
	if err != nil {
		return nil, err
	}

	clientCfg := client.DefaultConfig(tokens)
	clientCfg.BaseURL = cfg.APIURL
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
	clientCfg.Retry.MaxAttempts = cfg.MaxRetries
	clientCfg.RateLimits = ratelimit.NewTracker(rdb, logger)

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}
	if rdb != nil && ttl > 0 {
		clientCfg.Cache = cache.NewManager(rdb, cache.WithTTL(ttl))
	}

	api, err := client.New(clientCfg, logger)
	if err != nil {
		return nil, err
	}

	var store state.Store
	switch cfg.State.Backend {
	case config.StateRedis:
		store = state.NewRedisStore(rdb, state.DefaultRedisKey)
	default:
		store = state.NewFileStore(cfg.State.Path)
	}

	out, err := openSink(cfg.Output, stdout)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, out.Close)

	selected, err := streams.Select(cfg.Streams)
	if err != nil {
		return nil, err
	}
	start, err := cfg.Start()
	if err != nil {
		return nil, err
	}

	d.tap, err = tap.New(tap.Config{
		Streams:           selected,
		StartDate:         start,
		AccountID:         cfg.AccountID,
		DetailConcurrency: cfg.DetailConcurrency,
	}, api, out, store, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func openSink(cfg config.OutputConfig, stdout io.Writer) (sink.Sink, error) {
	switch cfg.Format {
	case config.OutputSQLite:
		return sink.OpenSQLite(cfg.Path)
	case config.OutputJSONL, "":
		if cfg.Path == "" {
			return sink.NewJSONLines(nopCloser{stdout}), nil
		}
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		return sink.NewJSONLines(f), nil
	default:
		return nil, errors.New("unknown output format " + cfg.Format)
	}
}

// nopCloser keeps Close from closing stdout.
type nopCloser struct{ io.Writer }
