package sweeper

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"atende_backend/platform/logger"
)

// Scheduler enqueues the maintenance tasks on their cron cadence.
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewScheduler(redisURL string, log *logger.Logger) (*Scheduler, error) {
	clientOpt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(clientOpt, &asynq.SchedulerOpts{})

	for _, e := range scheduleEntries() {
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.task.Type(), err)
		}
	}

	return &Scheduler{scheduler: scheduler, log: log}, nil
}

type scheduleEntry struct {
	spec string
	task *asynq.Task
}

func scheduleEntries() []scheduleEntry {
	return []scheduleEntry{
		{"*/15 * * * *", NewPurgeExpiredAudioTask()},
		{"0 */2 * * *", NewCloseStaleConversationsTask()},
		{"0 8 * * *", NewDailyLeadReportTask()},
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		s.scheduler.Shutdown()
	}()

	if err := s.scheduler.Run(); err != nil {
		s.log.Error("sweeper scheduler stopped", "error", err)
	}
}
