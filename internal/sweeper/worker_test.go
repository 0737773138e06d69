package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"atende_backend/internal/leads"
	"atende_backend/platform/logger"
)

type fakeStaleCloser struct {
	cutoff time.Time
	closed int
	err    error
}

func (f *fakeStaleCloser) CloseStale(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.closed, f.err
}

type fakeAudioPurger struct {
	calls   int
	removed int
}

func (f *fakeAudioPurger) PurgeOlderThan(context.Context, time.Time) (int, error) {
	f.calls++
	return f.removed, nil
}

type fakeLeadReporter struct {
	newLeads int
	stats    leads.Stats
}

func (f *fakeLeadReporter) CountSince(context.Context, time.Time) (int, error) {
	return f.newLeads, nil
}

func (f *fakeLeadReporter) GetStats(context.Context) (leads.Stats, error) {
	return f.stats, nil
}

func newTestWorker(t *testing.T, audio AudioPurger) (*Worker, *fakeStaleCloser) {
	t.Helper()
	srv := miniredis.RunT(t)

	closer := &fakeStaleCloser{closed: 3}
	reporter := &fakeLeadReporter{newLeads: 2, stats: leads.Stats{Total: 10}}

	w, err := NewWorker("redis://"+srv.Addr(), closer, audio, reporter, Options{
		StaleAfter: 7 * 24 * time.Hour,
	}, logger.New("development"))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w, closer
}

func TestHandleCloseStaleUsesConfiguredCutoff(t *testing.T) {
	w, closer := newTestWorker(t, nil)

	before := time.Now().Add(-7 * 24 * time.Hour)
	if err := w.handleCloseStale(context.Background(), NewCloseStaleConversationsTask()); err != nil {
		t.Fatalf("handleCloseStale: %v", err)
	}
	after := time.Now().Add(-7 * 24 * time.Hour)

	if closer.cutoff.Before(before) || closer.cutoff.After(after) {
		t.Errorf("cutoff = %v, want about one week ago", closer.cutoff)
	}
}

func TestHandlePurgeAudioSkipsWhenUnconfigured(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	if err := w.handlePurgeAudio(context.Background(), NewPurgeExpiredAudioTask()); err != nil {
		t.Fatalf("handlePurgeAudio: %v", err)
	}
}

func TestHandlePurgeAudioDelegates(t *testing.T) {
	purger := &fakeAudioPurger{removed: 4}
	w, _ := newTestWorker(t, purger)

	if err := w.handlePurgeAudio(context.Background(), NewPurgeExpiredAudioTask()); err != nil {
		t.Fatalf("handlePurgeAudio: %v", err)
	}
	if purger.calls != 1 {
		t.Errorf("purger calls = %d, want 1", purger.calls)
	}
}

func TestHandleDailyReport(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	if err := w.handleDailyReport(context.Background(), NewDailyLeadReportTask()); err != nil {
		t.Fatalf("handleDailyReport: %v", err)
	}
}

func TestNewSchedulerRegistersCronEntries(t *testing.T) {
	srv := miniredis.RunT(t)

	s, err := NewScheduler("redis://"+srv.Addr(), logger.New("development"))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s == nil {
		t.Fatal("scheduler is nil")
	}
}

func TestScheduleCadences(t *testing.T) {
	want := map[string]string{
		TaskPurgeExpiredAudio:       "*/15 * * * *",
		TaskCloseStaleConversations: "0 */2 * * *",
		TaskDailyLeadReport:         "0 8 * * *",
	}

	entries := scheduleEntries()
	if len(entries) != len(want) {
		t.Fatalf("entry count = %d, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		if spec, ok := want[e.task.Type()]; !ok || spec != e.spec {
			t.Errorf("task %s registered at %q, want %q", e.task.Type(), e.spec, spec)
		}
	}
}

func TestRedisClientOptRejectsGarbage(t *testing.T) {
	if _, err := redisClientOpt("not-a-url"); err == nil {
		t.Error("expected error for malformed redis url")
	}
}
