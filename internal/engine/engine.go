// Package engine implements the document synchronization core: the job
// lifecycle, the NSU fetch loop, deduplication, idempotent persistence
// and cooperative cancellation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fiscalsync/internal/source"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store composes the persistence surfaces the engine drives.
type Store interface {
	store.JobLogStore
	store.WatermarkStore
	store.DocumentStore
	store.ClientStore
}

// ArtifactRenderer produces the secondary artifact (a rendered PDF) for
// a persisted document and returns its URL. Implementations may be slow;
// failures are counted per document, never fatal to the run.
type ArtifactRenderer interface {
	Render(ctx context.Context, doc *store.Document) (string, error)
}

// Config holds the engine's tuning knobs.
type Config struct {
	// MaxConcurrentRuns bounds how many client loops run at once.
	MaxConcurrentRuns int

	// BatchRetries is the in-run attempt budget for a single failed
	// fetch before the whole run fails.
	BatchRetries int

	// RetryBackoff is the base delay between in-run fetch retries.
	RetryBackoff time.Duration

	// PurgeGraceWait is how long a tenant purge waits after cancelling
	// active jobs before deleting documents, so in-flight loops observe
	// the cancellation.
	PurgeGraceWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 8
	}
	if c.BatchRetries <= 0 {
		c.BatchRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.PurgeGraceWait <= 0 {
		c.PurgeGraceWait = 2 * time.Second
	}
	return c
}

// StartRequest describes a requested run.
type StartRequest struct {
	ClientID uuid.UUID
	TenantID uuid.UUID
	Family   store.DocumentFamily
	Kind     store.JobKind
	Mode     store.JobMode

	// Period bounds, required when Mode is period.
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Engine runs one synchronization loop per client per active job.
type Engine struct {
	store    Store
	source   source.Source
	renderer ArtifactRenderer
	registry *registry
	log      *slog.Logger
	cfg      Config

	baseCtx context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates an engine. Runs spawned by StartJob outlive the request
// that started them; they stop when Shutdown is called.
func New(s Store, src source.Source, renderer ArtifactRenderer, log *slog.Logger, cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	g := &errgroup.Group{}
	cfg = cfg.withDefaults()
	g.SetLimit(cfg.MaxConcurrentRuns)

	return &Engine{
		store:    s,
		source:   src,
		renderer: renderer,
		registry: newRegistry(),
		log:      log,
		cfg:      cfg,
		baseCtx:  ctx,
		cancel:   cancel,
		group:    g,
	}
}

// Shutdown cancels all in-flight runs and waits for them to drain.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartJob validates the request, creates the job row and dispatches the
// loop. An expired or missing certificate fails the job immediately with
// zero remote calls. A client that already has an active run for the
// family gets store.ErrActiveJobExists.
func (e *Engine) StartJob(ctx context.Context, req StartRequest) (uuid.UUID, error) {
	if req.Mode == store.JobModePeriod && (req.PeriodStart == nil || req.PeriodEnd == nil) {
		return uuid.Nil, fmt.Errorf("period mode requires both period bounds")
	}
	if req.Mode == store.JobModeIncremental {
		// Incremental runs never carry a range; a stray one would leak
		// into resumptions.
		req.PeriodStart, req.PeriodEnd = nil, nil
	}

	job := &store.SyncJob{
		ID:          uuid.New(),
		ClientID:    req.ClientID,
		TenantID:    req.TenantID,
		Kind:        req.Kind,
		Family:      req.Family,
		Status:      store.JobStatusPending,
		Mode:        req.Mode,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Attempt:     1,
		Stage:       "waiting to start",
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.store.CreateJob(ctx, nil, job); err != nil {
		return uuid.Nil, err
	}

	// Certificate precheck happens before any remote call so an expired
	// certificate surfaces instantly instead of as a handshake failure.
	cert, err := e.store.GetActiveCertificate(ctx, req.ClientID)
	if err != nil {
		reason := "no active certificate for client"
		if !errors.Is(err, store.ErrNoCertificate) {
			reason = "certificate could not be loaded"
			e.log.Error("certificate lookup failed", "client_id", req.ClientID, "error", err)
		}
		if markErr := e.store.MarkFailed(ctx, job.ID, reason, false); markErr != nil {
			return uuid.Nil, markErr
		}
		return job.ID, nil
	}
	if cert.NotAfter.Before(time.Now()) {
		if err := e.store.MarkFailed(ctx, job.ID, "certificate expired", true); err != nil {
			return uuid.Nil, err
		}
		return job.ID, nil
	}

	e.dispatch(job.ID)
	return job.ID, nil
}

// ResumeJob moves a failed or stalled-running job back through resuming
// and re-dispatches its loop. The loop restarts from the persisted
// watermark, never from scratch, and the period bounds stay untouched.
func (e *Engine) ResumeJob(ctx context.Context, jobID uuid.UUID) error {
	// A stalled loop may still be alive in this process, blocked on a
	// slow fetch. Interrupt it and wait for it to drain before the
	// replacement claims the row; one loop owns a job at a time.
	if entry := e.registry.find(jobID); entry != nil {
		entry.cancel()
		select {
		case <-entry.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := e.store.MarkResuming(ctx, jobID, "resuming after interruption"); err != nil {
		return err
	}
	e.dispatch(jobID)
	return nil
}

// CancelJob flips the job to cancelled and interrupts the loop if it is
// in flight in this process. Loops in other processes observe the status
// at their next suspension point.
func (e *Engine) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	if err := e.store.MarkCancelled(ctx, jobID); err != nil {
		return err
	}
	e.registry.cancelJob(jobID)
	return nil
}

// CancelAllForTenant cancels every active job of a tenant.
func (e *Engine) CancelAllForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	n, err := e.store.CancelActiveJobs(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	e.registry.cancelTenant(tenantID)
	return n, nil
}

// PurgeTenantDocuments is the destructive bulk teardown: cancel every
// active job, wait for in-flight loops to observe it, then delete the
// tenant's documents. Loops that missed the flag find their job row gone
// and treat that as cancellation, so no writes land after the purge.
func (e *Engine) PurgeTenantDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	if _, err := e.CancelAllForTenant(ctx, tenantID); err != nil {
		return 0, err
	}

	select {
	case <-time.After(e.cfg.PurgeGraceWait):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	return e.store.DeleteTenantDocuments(ctx, tenantID)
}

// dispatch hands a job to the bounded run pool.
func (e *Engine) dispatch(jobID uuid.UUID) {
	e.group.Go(func() error {
		e.run(e.baseCtx, jobID)
		return nil
	})
}
