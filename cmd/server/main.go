package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mydiplomaclassresults/sbtet-scraper/config"
	"github.com/mydiplomaclassresults/sbtet-scraper/scraper"
	"github.com/mydiplomaclassresults/sbtet-scraper/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()
	listenDefault := defaultCfg.ListenAddr
	if value, ok := config.EnvString("SBTET_LISTEN_ADDR"); ok {
		listenDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SBTET_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	workersDefault := defaultCfg.Workers
	if value, ok, err := config.EnvInt("SBTET_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SBTET_WORKERS: %v\n", err)
		os.Exit(1)
	} else if ok {
		workersDefault = value
	}
	batchDefault := defaultCfg.BatchSize
	if value, ok, err := config.EnvInt("SBTET_BATCH_SIZE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SBTET_BATCH_SIZE: %v\n", err)
		os.Exit(1)
	} else if ok {
		batchDefault = value
	}
	timeoutDefault := defaultCfg.RequestTimeout
	if value, ok, err := config.EnvDuration("SBTET_REQUEST_TIMEOUT"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SBTET_REQUEST_TIMEOUT: %v\n", err)
		os.Exit(1)
	} else if ok {
		timeoutDefault = value
	}
	ttlDefault := defaultCfg.JobTTL
	if value, ok, err := config.EnvDuration("SBTET_JOB_TTL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SBTET_JOB_TTL: %v\n", err)
		os.Exit(1)
	} else if ok {
		ttlDefault = value
	}

	listenAddr := flag.String("listen", listenDefault, "API listen address")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	workers := flag.Int("workers", workersDefault, "Concurrent result fetches per batch")
	batchSize := flag.Int("batch-size", batchDefault, "Number of pins per batch")
	requestTimeout := flag.Duration("request-timeout", timeoutDefault, "Per-request timeout")
	jobTTL := flag.Duration("job-ttl", ttlDefault, "How long finished jobs are retained")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.ListenAddr = *listenAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.Workers = *workers
	cfg.BatchSize = *batchSize
	cfg.RequestTimeout = *requestTimeout
	cfg.JobTTL = *jobTTL
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := scraper.NewMetrics()

	srv, err := server.New(cfg, metrics)
	if err != nil {
		slog.Error("initialising server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		if err := srv.Shutdown(); err != nil {
			slog.Error("server shutdown failed", slog.Any("error", err))
		}
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
			cancel()
		}
	}()

	slog.Info("starting results API",
		slog.String("listen", cfg.ListenAddr),
		slog.Int("workers", cfg.Workers),
		slog.Int("batch_size", cfg.BatchSize),
	)
	if err := srv.Listen(); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
