package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fiscalsync/internal/engine"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

type fakeJobLog struct {
	mu      sync.Mutex
	stalled []store.SyncJob
	failed  map[uuid.UUID]string
}

func newFakeJobLog(stalled ...store.SyncJob) *fakeJobLog {
	return &fakeJobLog{stalled: stalled, failed: make(map[uuid.UUID]string)}
}

func (f *fakeJobLog) ListStalledJobs(_ context.Context, _ time.Time) ([]store.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.SyncJob(nil), f.stalled...), nil
}

func (f *fakeJobLog) MarkFailed(_ context.Context, id uuid.UUID, reason string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeJobLog) failedReason(id uuid.UUID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.failed[id]
	return r, ok
}

type fakeResumer struct {
	mu      sync.Mutex
	resumed []uuid.UUID
}

func (f *fakeResumer) ResumeJob(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, jobID)
	return nil
}

func (f *fakeResumer) resumedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resumed)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stalledJob(attempt int, expectedTotal, progress int64, stage string) store.SyncJob {
	started := time.Now().Add(-time.Hour)
	return store.SyncJob{
		ID:            uuid.New(),
		ClientID:      uuid.New(),
		TenantID:      uuid.New(),
		Family:        store.FamilyInvoices,
		Status:        store.JobStatusRunning,
		Mode:          store.JobModeIncremental,
		ExpectedTotal: expectedTotal,
		ProgressCount: progress,
		Attempt:       attempt,
		Stage:         stage,
		StartedAt:     &started,
	}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestSweep_ResumesStalledRun(t *testing.T) {
	job := stalledJob(1, 100, 40, "downloading documents (40/100)")
	jobs := newFakeJobLog(job)
	resumer := &fakeResumer{}

	m := New(jobs, resumer, testLogger(), Config{RetryDelay: time.Millisecond, MaxAttempts: 3})
	m.Sweep(context.Background())

	waitFor(t, "resume", func() bool { return resumer.resumedCount() == 1 })

	if _, failed := jobs.failedReason(job.ID); failed {
		t.Error("run within its attempt budget must not be failed")
	}
}

func TestSweep_SkipsZeroWorkRun(t *testing.T) {
	// Nothing expected, nothing written: the loop is finishing an empty
	// feed, not hung.
	job := stalledJob(1, 0, 0, "contacting remote source")
	jobs := newFakeJobLog(job)
	resumer := &fakeResumer{}

	m := New(jobs, resumer, testLogger(), Config{RetryDelay: time.Millisecond})
	m.Sweep(context.Background())

	time.Sleep(50 * time.Millisecond)
	if resumer.resumedCount() != 0 {
		t.Error("zero-work run must not be resumed")
	}
	if _, failed := jobs.failedReason(job.ID); failed {
		t.Error("zero-work run must not be failed")
	}
}

func TestSweep_SkipsArtifactBackfillPhase(t *testing.T) {
	job := stalledJob(1, 100, 40, engine.StageArtifactFix)
	jobs := newFakeJobLog(job)
	resumer := &fakeResumer{}

	m := New(jobs, resumer, testLogger(), Config{RetryDelay: time.Millisecond})
	m.Sweep(context.Background())

	time.Sleep(50 * time.Millisecond)
	if resumer.resumedCount() != 0 {
		t.Error("artifact backfill phase must not be retried")
	}
}

func TestSweep_EscalatesAfterAttemptBudget(t *testing.T) {
	job := stalledJob(3, 100, 40, "downloading documents (40/100)")
	jobs := newFakeJobLog(job)
	resumer := &fakeResumer{}

	m := New(jobs, resumer, testLogger(), Config{MaxAttempts: 3, RetryDelay: time.Millisecond})
	m.Sweep(context.Background())

	reason, failed := jobs.failedReason(job.ID)
	if !failed {
		t.Fatal("expected run to be escalated to failure")
	}
	if reason != "timed out: no progress and retry attempts exhausted" {
		t.Errorf("unexpected failure reason: %q", reason)
	}
	if resumer.resumedCount() != 0 {
		t.Error("escalated run must not also be resumed")
	}
}

func TestSweep_InfiniteRetryNeverEscalates(t *testing.T) {
	job := stalledJob(50, 100, 40, "downloading documents (40/100)")
	jobs := newFakeJobLog(job)
	resumer := &fakeResumer{}

	m := New(jobs, resumer, testLogger(), Config{MaxAttempts: 3, InfiniteRetry: true, RetryDelay: MinRetryDelay})

	// Drive handleStalled directly to avoid waiting out the floored
	// resume delay.
	m.cfg.RetryDelay = time.Millisecond
	m.Sweep(context.Background())

	waitFor(t, "resume under infinite retry", func() bool { return resumer.resumedCount() == 1 })
	if _, failed := jobs.failedReason(job.ID); failed {
		t.Error("infinite retry must never escalate to failure")
	}
}

func TestConfig_RetryDelayFlooredUnderInfiniteRetry(t *testing.T) {
	cfg := Config{InfiniteRetry: true, RetryDelay: time.Second}.withDefaults()
	if cfg.RetryDelay != MinRetryDelay {
		t.Errorf("got RetryDelay %v, want floor %v", cfg.RetryDelay, MinRetryDelay)
	}

	cfg = Config{InfiniteRetry: false, RetryDelay: time.Second}.withDefaults()
	if cfg.RetryDelay != time.Second {
		t.Errorf("bounded retry must keep its configured delay, got %v", cfg.RetryDelay)
	}
}

func TestRun_SweepsOnIntervalAndDrains(t *testing.T) {
	job := stalledJob(1, 100, 40, "downloading documents (40/100)")
	jobs := newFakeJobLog(job)
	resumer := &fakeResumer{}

	m := New(jobs, resumer, testLogger(), Config{
		Interval:   10 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, "at least one sweep", func() bool { return resumer.resumedCount() >= 1 })
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not drain after cancellation")
	}
}
