// Package sweeper runs the periodic maintenance jobs: closing abandoned
// conversations, purging expired voice notes and logging the daily lead
// report.
package sweeper

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"atende_backend/internal/leads"
	"atende_backend/platform/logger"
)

// StaleCloser closes active conversations untouched since the cutoff.
type StaleCloser interface {
	CloseStale(ctx context.Context, cutoff time.Time) (int, error)
}

// AudioPurger removes stored voice notes older than the cutoff.
type AudioPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// LeadReporter supplies the numbers for the daily report.
type LeadReporter interface {
	CountSince(ctx context.Context, cutoff time.Time) (int, error)
	GetStats(ctx context.Context) (leads.Stats, error)
}

// Options tune the maintenance cutoffs.
type Options struct {
	// StaleAfter is how long an active conversation may sit untouched
	// before it is closed.
	StaleAfter time.Duration
	// AudioRetention is how long synthesized voice notes are kept.
	AudioRetention time.Duration
	Concurrency    int
}

func (o *Options) applyDefaults() {
	if o.StaleAfter <= 0 {
		o.StaleAfter = 7 * 24 * time.Hour
	}
	if o.AudioRetention <= 0 {
		o.AudioRetention = 48 * time.Hour
	}
	if o.Concurrency < 1 {
		o.Concurrency = 5
	}
}

// Worker consumes the maintenance tasks.
type Worker struct {
	server        *asynq.Server
	mux           *asynq.ServeMux
	conversations StaleCloser
	audio         AudioPurger // nil when object storage is not configured
	leads         LeadReporter
	opts          Options
	log           *logger.Logger
}

func NewWorker(redisURL string, conversations StaleCloser, audio AudioPurger, leadReporter LeadReporter, opts Options, log *logger.Logger) (*Worker, error) {
	opts.applyDefaults()

	clientOpt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(clientOpt, asynq.Config{
		Concurrency: opts.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:        server,
		mux:           mux,
		conversations: conversations,
		audio:         audio,
		leads:         leadReporter,
		opts:          opts,
		log:           log,
	}

	mux.HandleFunc(TaskCloseStaleConversations, w.handleCloseStale)
	mux.HandleFunc(TaskPurgeExpiredAudio, w.handlePurgeAudio)
	mux.HandleFunc(TaskDailyLeadReport, w.handleDailyReport)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("sweeper worker stopped", "error", err)
	}
}

func (w *Worker) handleCloseStale(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().Add(-w.opts.StaleAfter)

	closed, err := w.conversations.CloseStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if closed > 0 {
		w.log.Info("stale conversations closed",
			"count", closed,
			"stale_after", w.opts.StaleAfter.String(),
		)
	}
	return nil
}

func (w *Worker) handlePurgeAudio(ctx context.Context, _ *asynq.Task) error {
	if w.audio == nil {
		return nil
	}
	cutoff := time.Now().Add(-w.opts.AudioRetention)

	removed, err := w.audio.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		w.log.Info("expired voice notes purged", "count", removed)
	}
	return nil
}

func (w *Worker) handleDailyReport(ctx context.Context, _ *asynq.Task) error {
	newLeads, err := w.leads.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}

	stats, err := w.leads.GetStats(ctx)
	if err != nil {
		return err
	}

	w.log.Info("daily lead report",
		"new_last_24h", newLeads,
		"total", stats.Total,
		"by_temperature", stats.ByTemperature,
		"by_segment", stats.BySegment,
	)
	return nil
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
