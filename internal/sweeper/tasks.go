package sweeper

import "github.com/hibiken/asynq"

const (
	TaskCloseStaleConversations = "conversations.close_stale"
	TaskPurgeExpiredAudio       = "audio.purge_expired"
	TaskDailyLeadReport         = "leads.daily_report"
)

// The maintenance tasks carry no payload; the task type alone identifies
// the work.
func NewCloseStaleConversationsTask() *asynq.Task {
	return asynq.NewTask(TaskCloseStaleConversations, nil)
}

func NewPurgeExpiredAudioTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeExpiredAudio, nil)
}

func NewDailyLeadReportTask() *asynq.Task {
	return asynq.NewTask(TaskDailyLeadReport, nil)
}
