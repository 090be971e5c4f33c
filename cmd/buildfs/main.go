// Command buildfs stages a source tree into a build directory through the
// virtual file layer.
//
// Sources matching the include globs are scanned into the file cache, staged
// into the output directory through a compiler host and flushed to disk. With
// -watch the source tree is watched and every change is restaged
// incrementally.
//
// Usage:
//
//	buildfs [flags]
//	buildfs -watch -metrics-addr :9090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/buildfs"
	"github.com/absfs/buildfs/internal/config"
	"github.com/absfs/buildfs/internal/diskwatch"
	"github.com/absfs/buildfs/internal/logging"
	"github.com/absfs/memfs"
	"github.com/absfs/osfs"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (default ./"+config.DefaultFile+" if present)")
	root := flag.String("root", "", "Source tree root")
	outDir := flag.String("out", "", "Output directory, relative to root")
	watch := flag.Bool("watch", false, "Watch the source tree and rebuild on change")
	writeToDisk := flag.Bool("write-to-disk", false, "Persist writes immediately instead of only on flush")
	dryRun := flag.Bool("dry-run", false, "Flush into memory instead of the output directory")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// explicit flags win over the config file and environment
	levelPinned := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Root = *root
		case "out":
			cfg.OutDir = *outDir
		case "watch":
			cfg.Watch = *watch
		case "write-to-disk":
			cfg.WriteToDisk = *writeToDisk
		case "dry-run":
			cfg.DryRun = *dryRun
		case "log-level":
			cfg.LogLevel = *logLevel
			levelPinned = true
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, level, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogOutput,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}
	if cfg.Watch && !levelPinned {
		go reloadOnHangup(ctx, *configPath, level, logger)
	}

	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	disk, err := osfs.NewFS()
	if err != nil {
		return fmt.Errorf("open disk: %w", err)
	}

	var out absfs.FileSystem = disk
	if cfg.DryRun {
		mem, err := memfs.NewFS()
		if err != nil {
			return err
		}
		out = mem
		logger.Info("dry run, output stays in memory")
	}

	bctx := buildfs.NewContext(
		buildfs.WithInput(disk),
		buildfs.WithOutput(out),
		buildfs.WithWriteToDisk(cfg.WriteToDisk),
		buildfs.WithLogger(logger),
	)

	match := diskwatch.NewMatcher(cfg.Root, cfg.Include, cfg.Exclude, []string{cfg.OutPath})
	n, err := diskwatch.Scan(bctx.Cache(), match)
	if err != nil {
		return fmt.Errorf("scan %s: %w", cfg.Root, err)
	}
	logger.Info("source tree scanned",
		zap.String("root", cfg.Root),
		zap.Int("files", n),
	)

	b := newBuilder(bctx, match, cfg.OutPath, out)
	if err := b.build(b.sourcePaths()); err != nil {
		if !cfg.Watch {
			return err
		}
		logger.Error("initial build failed", zap.Error(err))
	}

	if !cfg.Watch {
		return nil
	}
	return watchLoop(ctx, bctx, b, match, cfg.Debounce)
}

func watchLoop(ctx context.Context, bctx *buildfs.Context, b *builder, match *diskwatch.Matcher, debounce time.Duration) error {
	logger := bctx.Logger()

	w, err := diskwatch.New(bctx, match, debounce)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	// removals never show up as cache changes
	bctx.Events().On(buildfs.TopicActivity, func(buildfs.Event) {
		if n := b.prune(); n > 0 {
			b.build(nil)
		}
	})

	agg := bctx.NewAggregator()
	defer agg.Close()

	onChange := func(path string, at int64) {
		logger.Info("change detected", zap.String("path", path))
	}

	var onGeneration buildfs.AggregatedFunc
	onGeneration = func(err error, files, dirs, missing []string, fileTimes, dirTimes map[string]int64) {
		if err != nil {
			logger.Error("watch generation failed", zap.Error(err))
			return
		}
		sources, err := b.rebuild(files)
		if err != nil {
			logger.Error("rebuild failed", zap.Error(err))
		}
		// pick up sources that appeared in this generation
		if err := agg.Watch(buildfs.WatchOptions{Files: sources}, onChange, onGeneration); err != nil {
			logger.Error("failed to renew watch session", zap.Error(err))
		}
	}

	if err := agg.Watch(buildfs.WatchOptions{Files: b.watched()}, onChange, onGeneration); err != nil {
		return err
	}

	logger.Info("watching for changes", zap.String("root", match.Root()))
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadOnHangup re-reads the log level from the config on SIGHUP
func reloadOnHangup(ctx context.Context, configPath string, level zap.AtomicLevel, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			name, err := reloadLogLevel(configPath, level)
			if err != nil {
				logger.Warn("config reload failed", zap.Error(err))
				continue
			}
			logger.Info("log level reloaded", zap.String("level", name))
		}
	}
}

func reloadLogLevel(configPath string, level zap.AtomicLevel) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	logging.SetLevel(level, cfg.LogLevel)
	return level.Level().String(), nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", buildfs.MetricsHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
