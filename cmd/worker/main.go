package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prescottprue/tessellate-sub000/internal/blob"
	"github.com/prescottprue/tessellate-sub000/internal/queue"
	"github.com/prescottprue/tessellate-sub000/internal/repository/postgres"
	"github.com/prescottprue/tessellate-sub000/internal/service/provision"
	"github.com/prescottprue/tessellate-sub000/pkg/config"
	"github.com/prescottprue/tessellate-sub000/pkg/logger"
)

func main() {
	cfg := config.LoadWorkerConfig()
	log := logger.New("worker", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	store, err := blob.NewS3(ctx, blob.S3Config{
		Endpoint:       cfg.BlobEndpoint,
		Region:         cfg.BlobRegion,
		AccessKey:      cfg.BlobAccessKey,
		SecretKey:      cfg.BlobSecretKey,
		ForcePathStyle: cfg.BlobForcePathStyle,
	})
	if err != nil {
		log.Error("failed to configure blob storage", "error", err)
		os.Exit(1)
	}

	redisQueue, err := queue.NewRedis(cfg.QueueRedisAddr, cfg.QueueRedisPassword, cfg.QueueRedisDB, cfg.QueueKey, log)
	if err != nil {
		log.Error("failed to connect to work queue", "error", err)
		os.Exit(1)
	}
	defer redisQueue.Close()

	repo := postgres.New(pool)
	publisher := queue.NewEventPublisher(redisQueue, cfg.EventsChannel, log)

	worker := provision.NewWorker(redisQueue, store, repo, repo, publisher, log)
	worker.DefaultTemplateBucket = cfg.DefaultTemplateBucket
	worker.PollBackoff = cfg.PollBackoff

	worker.Run(ctx)
}
