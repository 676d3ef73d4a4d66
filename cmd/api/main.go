package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prescottprue/tessellate-sub000/internal/app/migrate"
	"github.com/prescottprue/tessellate-sub000/internal/blob"
	httpx "github.com/prescottprue/tessellate-sub000/internal/http"
	"github.com/prescottprue/tessellate-sub000/internal/identity"
	"github.com/prescottprue/tessellate-sub000/internal/queue"
	"github.com/prescottprue/tessellate-sub000/internal/repository/postgres"
	"github.com/prescottprue/tessellate-sub000/internal/service/membership"
	"github.com/prescottprue/tessellate-sub000/internal/service/project"
	"github.com/prescottprue/tessellate-sub000/internal/service/provision"
	"github.com/prescottprue/tessellate-sub000/internal/service/session"
	"github.com/prescottprue/tessellate-sub000/internal/service/storage"
	"github.com/prescottprue/tessellate-sub000/internal/ws"
	"github.com/prescottprue/tessellate-sub000/pkg/config"
	"github.com/prescottprue/tessellate-sub000/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

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

	eventsHub := ws.NewHub()

	// The work queue is optional for the API: without it project
	// creation still provisions storage but cannot enqueue template
	// jobs.
	var jobQueue queue.Queue
	if addr := strings.TrimSpace(cfg.QueueRedisAddr); addr != "" {
		redisQueue, err := queue.NewRedis(addr, cfg.QueueRedisPassword, cfg.QueueRedisDB, cfg.QueueKey, log)
		if err != nil {
			log.Error("failed to connect to work queue", "error", err)
			os.Exit(1)
		}
		defer redisQueue.Close()
		jobQueue = redisQueue

		subscriber := queue.NewEventSubscriber(redisQueue, cfg.EventsChannel, log)
		go subscriber.Run(ctx, eventsHub)
	} else {
		log.Warn("work queue disabled, template provisioning unavailable")
	}

	sessions := session.New(repo, cfg.TokenSecret, log)
	local := identity.NewLocal(repo, repo, repo, sessions, log)
	resolver := identity.NewResolver(local, cfg.SecretsKey, cfg.DelegateTimeout, log)
	directory := membership.New(resolver, repo, repo, log)
	provisioner := storage.New(store, storage.Config{
		BucketPrefix:  cfg.BucketPrefix,
		StorageDomain: cfg.StorageDomain,
		SiteDomain:    cfg.SiteDomain,
		IndexDocument: cfg.IndexDocument,
	}, log)
	pipeline := provision.New(jobQueue, repo, log)
	lifecycle := project.New(resolver, directory, provisioner, pipeline, repo, cfg.SecretsKey, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.QueueRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.QueueRedisPassword, cfg.QueueRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, lifecycle, eventsHub, limiter, cfg.TokenSecret, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
