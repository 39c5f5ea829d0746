package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/bootstrap"
	"github.com/danieledinun/aitreon-sub004/internal/config"
	"github.com/danieledinun/aitreon-sub004/internal/observability/logging"
	"github.com/danieledinun/aitreon-sub004/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithQueueLagObserver(func(lag time.Duration) {
		workerMetrics.ObserveQueueLag(serviceName, lag)
	}))
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	timeout := time.Duration(cfg.IngestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeVideoIngest(ctx, func(handlerCtx context.Context, videoID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, timeout)
		defer cancel()

		workerMetrics.StartVideo()
		start := time.Now()
		result, err := app.Ingest.ProcessVideo(processCtx, videoID)

		created, attempted, discarded := 0, 0, 0
		if result != nil {
			created, attempted, discarded = result.ChunksCreated, result.ChunksAttempted, result.ChunksDiscarded
		}
		workerMetrics.FinishVideo(serviceName, time.Since(start), created, attempted, discarded, err)
		if err != nil {
			return err
		}
		slog.Info("video_ingested",
			"video_id", videoID,
			"chunks_created", created,
			"chunks_attempted", attempted,
			"chunks_discarded", discarded,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
