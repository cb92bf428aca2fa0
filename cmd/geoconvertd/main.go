// Command geoconvertd runs the conversion worker fleet: the HTTP
// metrics endpoint, a pool of job workers, and the hourly artifact
// cleanup sweep, wired together with an oklog/run.Group so any one
// component exiting (including a signal) shuts the whole process down
// cleanly — the same process-lifecycle shape cmd/operator uses.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/geoconvert/geoconvert/internal/config"
	"github.com/geoconvert/geoconvert/internal/database"
	"github.com/geoconvert/geoconvert/internal/jobs"
	"github.com/geoconvert/geoconvert/internal/logging"
	"github.com/geoconvert/geoconvert/pkg/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		println("geoconvertd: config: " + err.Error())
		os.Exit(1)
	}

	logLevel, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		println("geoconvertd: invalid log level " + cfg.LogLevel)
		os.Exit(1)
	}
	logger := logging.NewLogger(logLevel, cfg.LogFormat, "geoconvertd", os.Stderr)

	ctx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	cancelStartup()
	if err != nil {
		level.Error(logger).Log("msg", "connecting to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	backend, err := storage.New(context.Background(), cfg)
	if err != nil {
		level.Error(logger).Log("msg", "initializing storage backend", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.BrokerURL})
	defer rdb.Close()

	store := jobs.NewStore(db)
	queue := jobs.NewQueue(rdb, cfg.ConversionQueue)

	var g run.Group

	// Termination handler.
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)

		g.Add(func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "received termination signal, exiting gracefully")
			case <-cancel:
			}
			return nil
		}, func(err error) {
			close(cancel)
		})
	}

	// Metrics server.
	{
		registry := prometheus.NewRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		g.Add(func() error {
			return server.ListenAndServe()
		}, func(err error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	// Worker pool: one goroutine per configured worker, each pulling
	// at most one job at a time off the conversion queue.
	for i := 0; i < cfg.WorkerCount; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		worker := jobs.NewWorker(store, queue, backend, nil, cfg, logger, os.TempDir())
		g.Add(func() error {
			worker.Run(ctx)
			return nil
		}, func(err error) {
			cancel()
		})
	}

	// Hourly cleanup sweep.
	{
		ctx, cancel := context.WithCancel(context.Background())
		cleanup := jobs.NewCleanupTask(store, backend, logger)
		g.Add(func() error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					cleanup.Run(ctx)
				}
			}
		}, func(err error) {
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "exit with error", "err", err)
		os.Exit(1)
	}
}
