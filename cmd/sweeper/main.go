package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"atende_backend/internal/config"
	"atende_backend/internal/conversation"
	"atende_backend/internal/leads"
	"atende_backend/internal/storage"
	"atende_backend/internal/sweeper"
	"atende_backend/platform/db"
	"atende_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sweeper", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	var audioPurger sweeper.AudioPurger
	if cfg.IsMinioEnabled() {
		audioStore, err := storage.NewService(storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioAudioBucket,
		})
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		audioPurger = audioStore
	}

	worker, err := sweeper.NewWorker(
		cfg.RedisURL,
		conversation.NewRepository(pool),
		audioPurger,
		leads.NewRepository(pool),
		sweeper.Options{StaleAfter: cfg.StaleAfter},
		log,
	)
	if err != nil {
		log.Error("failed to initialize sweeper worker", "error", err)
		panic("failed to initialize sweeper worker: " + err.Error())
	}

	scheduler, err := sweeper.NewScheduler(cfg.RedisURL, log)
	if err != nil {
		log.Error("failed to initialize sweeper scheduler", "error", err)
		panic("failed to initialize sweeper scheduler: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	_ = g.Wait()

	log.Info("sweeper stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
