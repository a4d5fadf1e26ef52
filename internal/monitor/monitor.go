// Package monitor watches the job log for runs stuck in a running state
// and either resumes them or escalates to terminal failure.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fiscalsync/internal/engine"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// Resumer is the slice of the engine the monitor drives.
type Resumer interface {
	ResumeJob(ctx context.Context, jobID uuid.UUID) error
}

// JobLog is the slice of the store the monitor reads and writes. It only
// ever touches status, attempt and error fields; progress counters
// belong to the engine loop.
type JobLog interface {
	ListStalledJobs(ctx context.Context, cutoff time.Time) ([]store.SyncJob, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, certificateExpired bool) error
}

// Config holds the monitor's policy knobs.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration

	// StallTimeout is how long a run may sit in running before it is
	// considered stuck.
	StallTimeout time.Duration

	// MaxAttempts bounds automatic retries. Ignored when InfiniteRetry
	// is set.
	MaxAttempts int

	// InfiniteRetry retries stalled runs forever.
	InfiniteRetry bool

	// RetryDelay is the backoff before a stalled run is resumed. Floored
	// at MinRetryDelay when InfiniteRetry is on, to avoid hot-looping
	// against the remote source.
	RetryDelay time.Duration
}

// MinRetryDelay is the floor applied to RetryDelay under InfiniteRetry.
const MinRetryDelay = 15 * time.Second

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.InfiniteRetry && c.RetryDelay < MinRetryDelay {
		c.RetryDelay = MinRetryDelay
	}
	return c
}

// Monitor periodically scans for stalled runs.
type Monitor struct {
	jobs   JobLog
	engine Resumer
	log    *slog.Logger
	cfg    Config

	wg sync.WaitGroup
}

// New creates a stall monitor.
func New(jobs JobLog, eng Resumer, log *slog.Logger, cfg Config) *Monitor {
	return &Monitor{jobs: jobs, engine: eng, log: log, cfg: cfg.withDefaults()}
}

// Run blocks, sweeping on the configured interval until the context is
// cancelled, then waits for pending delayed resumes.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one scan. Exported so tests and an admin trigger can drive
// it directly.
func (m *Monitor) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.StallTimeout)
	stalled, err := m.jobs.ListStalledJobs(ctx, cutoff)
	if err != nil {
		m.log.Error("stall sweep failed", "error", err)
		return
	}

	for i := range stalled {
		m.handleStalled(ctx, &stalled[i])
	}
}

func (m *Monitor) handleStalled(ctx context.Context, job *store.SyncJob) {
	// A run that expects nothing and has written nothing is finishing
	// with nothing, not hung.
	if job.ExpectedTotal == 0 && job.ProgressCount == 0 {
		return
	}

	// The artifact backfill sub-phase is known to be slow while still
	// progressing; retrying it would only duplicate work.
	if strings.Contains(job.Stage, engine.StageArtifactFix) {
		return
	}

	log := m.log.With("job_id", job.ID, "client_id", job.ClientID, "attempt", job.Attempt)

	if !m.cfg.InfiniteRetry && job.Attempt >= m.cfg.MaxAttempts {
		reason := "timed out: no progress and retry attempts exhausted"
		log.Warn("stalled run escalated to failure")
		if err := m.jobs.MarkFailed(ctx, job.ID, reason, false); err != nil {
			log.Error("failed to mark stalled job failed", "error", err)
		}
		return
	}

	log.Info("stalled run scheduled for resume", "delay", m.cfg.RetryDelay)
	m.resumeAfter(ctx, job.ID, m.cfg.RetryDelay)
}

// resumeAfter re-invokes the engine for a stalled job once the backoff
// delay has passed.
func (m *Monitor) resumeAfter(ctx context.Context, jobID uuid.UUID, delay time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		if err := m.engine.ResumeJob(ctx, jobID); err != nil {
			m.log.Warn("stalled job could not be resumed", "job_id", jobID, "error", err)
		}
	}()
}
