package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"atende_backend/internal/ai"
	"atende_backend/internal/config"
	"atende_backend/internal/conversation"
	"atende_backend/internal/dashboard"
	"atende_backend/internal/dedup"
	"atende_backend/internal/email"
	"atende_backend/internal/handoff"
	httprouter "atende_backend/internal/http/router"
	"atende_backend/internal/instagram"
	"atende_backend/internal/leads"
	"atende_backend/internal/router"
	"atende_backend/internal/sequencer"
	"atende_backend/internal/storage"
	"atende_backend/internal/webhook"
	"atende_backend/internal/whatsapp"
	"atende_backend/platform/db"
	"atende_backend/platform/events"
	"atende_backend/platform/logger"
	"atende_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(cfg.DatabaseURL, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)

	// Object storage for synthesized voice notes. Optional: without it the
	// assistant degrades to text-only replies.
	var audioStore *storage.Service
	if cfg.IsMinioEnabled() {
		audioStore, err = storage.NewService(storage.Config{
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
		if err := withRetry(ctx, log, "ensure audio bucket", 5, 2*time.Second, func() error {
			return audioStore.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure audio bucket", "error", err, "bucket", cfg.MinioAudioBucket)
			panic("failed to ensure audio bucket: " + err.Error())
		}
		log.Info("storage service initialized", "bucket", cfg.MinioAudioBucket)
	} else {
		log.Warn("MinIO not configured; voice replies disabled")
	}

	aiClient := ai.NewClient(ai.Options{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
		MaxHistory:  cfg.OpenAIMaxHistory,
		Retry: ai.RetryOptions{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}, log)

	var synthesizer conversation.Synthesizer
	if audioStore != nil {
		synthesizer = ai.NewVoice(aiClient, audioStore, cfg.OpenAITTSVoice, cfg.AudioMaxChars)
	}

	conversationRepo := conversation.NewRepository(pool)
	conversationSvc := conversation.NewService(
		conversationRepo, aiClient, synthesizer, log,
		cfg.OpenAIMaxHistory, cfg.AudioMaxChars, cfg.AudioEnabledByDefault,
	)

	leadRepo := leads.NewRepository(pool)
	qualifier := leads.NewQualifier(leadRepo, conversationRepo, aiClient, eventBus)

	whatsappClient := whatsapp.NewClient(whatsapp.Config{
		URL:      cfg.WhatsAppURL,
		APIKey:   cfg.WhatsAppAPIKey,
		DeviceID: cfg.WhatsAppDeviceID,
	}, log)
	instagramClient := instagram.NewClient(instagram.Config{
		AccessToken: cfg.InstagramAccessToken,
		PageID:      cfg.InstagramPageID,
	}, log)

	var notifiers []handoff.Notifier
	if whatsappClient != nil && cfg.HandoffWhatsApp != "" {
		notifiers = append(notifiers, handoff.NewWhatsAppNotifier(whatsappClient, cfg.HandoffWhatsApp))
	}
	if cfg.IsSMTPEnabled() && cfg.HandoffEmail != "" {
		notifiers = append(notifiers, email.NewSMTPSender(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
			cfg.SMTPFromEmail, cfg.SMTPFromName, cfg.HandoffEmail,
		))
	}
	if len(notifiers) == 0 {
		log.Warn("no handoff notifiers configured; operators will not be alerted")
	}

	orchestrator := handoff.NewOrchestrator(conversationRepo, leadRepo, notifiers, eventBus, log)
	messageRouter := router.New(conversationSvc, qualifier, orchestrator, log, cfg.AutoHandoffMinTurns, cfg.QualifyCadence)

	deduplicator := dedup.New(cfg.DedupTTL)
	defer deduplicator.Close()
	seq := sequencer.New(ctx, cfg.RateLimitInterval, cfg.MaxQueueDepth, log)

	dispatcher := webhook.NewDispatcher(deduplicator, seq, messageRouter, log)

	var voiceNotes webhook.AudioStore
	if audioStore != nil {
		voiceNotes = audioStore
	}
	whatsappHandler := webhook.NewWhatsAppHandler(dispatcher, whatsappClient, voiceNotes, cfg.WhatsAppSegmentByNumber, log)
	instagramHandler := webhook.NewInstagramHandler(dispatcher, instagramClient, cfg.InstagramVerifyToken, cfg.InstagramAppSecret, log)

	engine := httprouter.New(httprouter.App{
		Config:    cfg,
		Log:       log,
		WhatsApp:  whatsappHandler,
		Instagram: instagramHandler,
		Dashboard: dashboard.NewHandler(conversationRepo, leadRepo, pool, validator.New(), log),
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		// Let in-flight conversation turns drain before closing the pool.
		seq.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
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
