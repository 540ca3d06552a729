package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"resume-insights/constants"
	"resume-insights/internal/backoff"
	"resume-insights/internal/common"
	"resume-insights/internal/export"
	"resume-insights/internal/extract"
	"resume-insights/internal/llm"
	"resume-insights/internal/pipeline"
	"resume-insights/internal/queue"
	"resume-insights/internal/repository"
	"resume-insights/internal/server"
	"resume-insights/internal/worker"
	"resume-insights/internal/ws"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		logger.Error("failed to create uploads directory", "dir", cfg.Uploads.Dir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open job store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		logger.Error("job store ping failed", "error", err)
		os.Exit(1)
	}

	broker, err := openBroker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open broker", "kind", cfg.Broker.Kind, "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	enricher := llm.NewClient(cfg.LLM, logger)
	extractor := extract.NewFileExtractor(logger)
	executors := pipeline.Executors(store, extractor, enricher)

	hub := ws.NewHub(logger)

	pool := worker.NewPool(store, broker, executors,
		worker.WithWorkers(cfg.Worker.Workers),
		worker.WithStageTimeout(cfg.Worker.StageTimeout),
		worker.WithRetryPolicy(worker.RetryPolicy{
			MaxAttempts: cfg.Worker.MaxAttempts,
			Backoff:     backoffStrategy(cfg.Worker),
		}),
		worker.WithNotifier(func(jobID uuid.UUID, stage constants.Stage, status constants.JobStatus) {
			hub.Publish(ws.Event{JobID: jobID, Stage: stage, Status: status, At: time.Now().UTC()})
		}),
		worker.WithLogger(logger),
	)
	pool.Start(ctx)

	exporter := export.NewService(store, logger)
	srv := server.New(store, broker, hub, exporter, cfg.Uploads, logger)

	logger.Info("resume-insights listening",
		"addr", cfg.Server.Addr,
		"db_driver", cfg.Database.Driver,
		"broker", cfg.Broker.Kind,
		"workers", cfg.Worker.Workers)

	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}

	// In-flight stage tasks finish their current attempt before workers exit.
	pool.Wait()
	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (repository.JobStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return repository.OpenPostgres(ctx, cfg.Database.DSN, cfg.Database.MaxConns, logger)
	default:
		return repository.OpenSQLite(cfg.Database.DSN, logger)
	}
}

func openBroker(ctx context.Context, cfg *common.Config, logger *slog.Logger) (queue.Broker, error) {
	switch cfg.Broker.Kind {
	case "redis":
		opts, err := goredis.ParseURL(cfg.Broker.RedisURL)
		if err != nil {
			return nil, common.WrapError(err, "parse redis url")
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, common.WrapError(err, "ping redis")
		}
		return queue.NewRedisBroker(client, logger,
			queue.WithRedisVisibilityTimeout(cfg.Broker.VisibilityTimeout)), nil
	default:
		return queue.NewMemoryBroker(logger,
			queue.WithVisibilityTimeout(cfg.Broker.VisibilityTimeout)), nil
	}
}

func backoffStrategy(w common.WorkerConfig) backoff.Strategy {
	return backoff.NewExponentialWithJitter(w.RetryBaseDelay, w.RetryMaxDelay)
}
