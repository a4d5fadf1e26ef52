package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fiscalsync/internal/parser"
	"fiscalsync/internal/source"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// StageArtifactFix is the stage text of the artifact backfill sub-phase.
// The stall monitor treats runs in this phase as slow but progressing.
const StageArtifactFix = "fixing missing artifacts"

// errRunCancelled signals that the loop observed a cancellation at a
// suspension point. The row already carries its terminal status.
var errRunCancelled = errors.New("run cancelled")

// errCertificateExpired signals the mid-run expiry check tripped.
var errCertificateExpired = errors.New("certificate expired")

// errCursorStuck signals the remote kept reporting a cursor ahead of
// ours while serving empty batches.
var errCursorStuck = errors.New("cursor stuck")

// run drives one job to a terminal state. All error handling converges
// here: the loop itself only returns classified errors.
func (e *Engine) run(ctx context.Context, jobID uuid.UUID) {
	job, err := e.store.GetJobByID(ctx, jobID)
	if err != nil {
		e.log.Warn("job disappeared before its run started", "job_id", jobID)
		return
	}

	log := e.log.With("job_id", jobID, "client_id", job.ClientID, "family", job.Family)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	entry := &runEntry{jobID: jobID, tenantID: job.TenantID, cancel: cancel, done: make(chan struct{})}
	e.registry.add(job.ClientID, job.Family, entry)
	defer close(entry.done)
	defer e.registry.remove(job.ClientID, job.Family, entry)

	if err := e.store.ClaimJob(runCtx, jobID, "contacting remote source"); err != nil {
		log.Info("job not claimable, skipping run", "error", err)
		return
	}

	err = e.syncLoop(runCtx, log, job)
	switch {
	case err == nil:
		// Terminal write already done by the loop.
	case errors.Is(err, errRunCancelled), errors.Is(err, store.ErrJobVanished):
		log.Info("run stopped by cancellation", "vanished", errors.Is(err, store.ErrJobVanished))
	case runCtx.Err() != nil:
		// Interrupted by registry cancel or process shutdown. A user
		// cancel already wrote the status; on shutdown the row stays
		// running and the stall monitor resumes it later.
		log.Info("run interrupted", "cause", runCtx.Err())
	default:
		reason, certExpired := classifyFailure(err)
		log.Error("run failed", "reason", reason, "error", err)
		if markErr := e.store.MarkFailed(context.Background(), jobID, reason, certExpired); markErr != nil {
			log.Error("failed to record run failure", "error", markErr)
		}
	}
}

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// syncLoop is the NSU fetch loop. Each iteration starts with a fresh
// status read; fetching, dedup and persistence follow; the watermark and
// progress row are advanced last so a crash resumes without loss.
func (e *Engine) syncLoop(ctx context.Context, log logger, job *store.SyncJob) error {
	cert, err := e.store.GetActiveCertificate(ctx, job.ClientID)
	if err != nil {
		return err
	}
	if cert.NotAfter.Before(time.Now()) {
		return errCertificateExpired
	}

	client, err := e.store.GetClientByID(ctx, job.ClientID)
	if err != nil {
		return fmt.Errorf("failed to load client: %w", err)
	}

	wm, err := e.store.GetWatermark(ctx, job.ClientID, job.Family)
	if err != nil {
		return err
	}

	cursor, err := e.startCursor(ctx, job, wm)
	if err != nil {
		return err
	}
	startCursor := cursor

	// Counters continue from the row so a resumed run keeps its totals.
	progress := store.JobProgress{
		ExpectedTotal:     job.ExpectedTotal,
		ProgressCount:     job.ProgressCount,
		LastSeenNSU:       cursor,
		NewCount:          job.NewCount,
		ExistingCount:     job.ExistingCount,
		ArtifactOKCount:   job.ArtifactOKCount,
		ArtifactFailCount: job.ArtifactFailCount,
		ParseFailCount:    job.ParseFailCount,
	}

	maxKnown := wm.MaxKnownNSU

	// The shared cursor marks NSUs fully processed for ALL documents, so
	// only incremental runs may move it. A period run walks cursors whose
	// documents it filters out by issue date; advancing past those would
	// make the next incremental run skip them.
	sharedCursor := cursor
	if job.Mode == store.JobModePeriod {
		sharedCursor = wm.LastSeenNSU
	}

	emptyStreak := 0

	for {
		// Suspension point. The row is read fresh, never cached; a
		// vanished row means a purge deleted it and is treated exactly
		// like a cancellation.
		status, err := e.store.GetJobStatus(ctx, job.ID)
		if err != nil {
			return err
		}
		if status != store.JobStatusRunning {
			return errRunCancelled
		}

		batch, err := e.fetchWithRetry(ctx, log, job, cert, client, cursor, &progress)
		if err != nil {
			return err
		}

		if batch.MaxKnownNSU > maxKnown {
			maxKnown = batch.MaxKnownNSU
		}
		if progress.ExpectedTotal == 0 && maxKnown > startCursor {
			progress.ExpectedTotal = maxKnown - startCursor
		}

		if len(batch.Items) == 0 {
			// Caught up: the server reports no cursor ahead of ours.
			if batch.MaxKnownNSU <= cursor {
				break
			}
			// The server claims documents ahead of the cursor but serves
			// none. Bounded by the retry budget so a confused remote
			// fails the run instead of spinning until the stall monitor
			// kills it.
			emptyStreak++
			if emptyStreak >= e.cfg.BatchRetries {
				return errCursorStuck
			}
			select {
			case <-time.After(e.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		emptyStreak = 0

		if err := e.processBatch(ctx, log, job, batch, &progress); err != nil {
			return err
		}

		for _, item := range batch.Items {
			if item.NSU > cursor {
				cursor = item.NSU
			}
		}
		progress.LastSeenNSU = cursor
		if job.Mode != store.JobModePeriod {
			sharedCursor = cursor
		}
		progress.Stage = fmt.Sprintf("downloading documents (%d/%d)", progress.ProgressCount, progress.ExpectedTotal)

		// Watermark first, then the job row: if we crash between the
		// two, the resumed loop re-fetches one batch and the upserts
		// absorb the replay.
		if err := e.store.AdvanceWatermark(ctx, &store.Watermark{
			ClientID:      job.ClientID,
			TenantID:      job.TenantID,
			Family:        job.Family,
			LastSeenNSU:   sharedCursor,
			MaxKnownNSU:   maxKnown,
			LastQueriedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := e.store.UpdateProgress(ctx, job.ID, progress); err != nil {
			if errors.Is(err, store.ErrJobVanished) {
				return store.ErrJobVanished
			}
			return err
		}
	}

	// Record the final server-side high-water mark even when the run
	// found nothing, so lag reporting stays current.
	if err := e.store.AdvanceWatermark(ctx, &store.Watermark{
		ClientID:      job.ClientID,
		TenantID:      job.TenantID,
		Family:        job.Family,
		LastSeenNSU:   sharedCursor,
		MaxKnownNSU:   maxKnown,
		LastQueriedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	// An incremental run that touched nothing is pruned instead of
	// cluttering history. Period runs are always kept: "no documents in
	// this range" is information.
	if job.Mode == store.JobModeIncremental && progress.NewCount == 0 && progress.ExistingCount == 0 {
		log.Info("incremental run found nothing, pruning job row")
		return e.store.DeleteJob(context.Background(), job.ID)
	}

	stage := fmt.Sprintf("finished: %d new, %d existing", progress.NewCount, progress.ExistingCount)
	log.Info("run completed",
		"new", progress.NewCount, "existing", progress.ExistingCount,
		"parse_failures", progress.ParseFailCount, "last_seen_nsu", cursor)
	return e.store.MarkCompleted(context.Background(), job.ID, stage)
}

// startCursor picks where the loop begins. Incremental runs continue
// from the watermark. Period runs seek to the jump point: the smallest
// NSU among persisted documents issued inside the range, minus one. The
// NSU/date correlation behind the jump point is a remote-source
// heuristic, so the fallback is a full scan from zero and the off-by-one
// errs on the early side; re-fetching is cheap, skipping is not.
func (e *Engine) startCursor(ctx context.Context, job *store.SyncJob, wm *store.Watermark) (int64, error) {
	if job.Mode != store.JobModePeriod {
		cursor := wm.LastSeenNSU
		if job.LastSeenNSU > cursor {
			cursor = job.LastSeenNSU
		}
		return cursor, nil
	}

	// A resumed period run continues from its own recorded cursor.
	if job.LastSeenNSU > 0 {
		return job.LastSeenNSU, nil
	}

	minNSU, err := e.store.MinNSUForPeriod(ctx, job.ClientID, job.Family, *job.PeriodStart)
	if err != nil {
		return 0, err
	}
	if minNSU <= 0 {
		return 0, nil
	}
	return minNSU - 1, nil
}

// fetchWithRetry pulls one batch, retrying transient failures within the
// run's attempt budget. Credential-class failures abort immediately.
func (e *Engine) fetchWithRetry(ctx context.Context, log logger, job *store.SyncJob, cert *store.Certificate, client *store.Client, cursor int64, progress *store.JobProgress) (*source.Batch, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.BatchRetries; attempt++ {
		batch, err := e.source.FetchBatch(ctx, cert, client, job.Family, cursor)
		if err == nil {
			return batch, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch source.Classify(err) {
		case source.KindAuthRejected, source.KindCertificate:
			return nil, err
		}

		lastErr = err
		log.Warn("batch fetch failed, retrying",
			"nsu", cursor, "attempt", attempt, "budget", e.cfg.BatchRetries, "error", err)

		progress.Stage = fmt.Sprintf("retrying batch at NSU %d (attempt %d/%d)", cursor, attempt, e.cfg.BatchRetries)
		if err := e.store.UpdateProgress(ctx, job.ID, *progress); err != nil {
			return nil, err
		}

		select {
		case <-time.After(time.Duration(attempt) * e.cfg.RetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// processBatch parses, deduplicates and persists one batch. A single bad
// document is skipped and counted, never fatal to the batch.
func (e *Engine) processBatch(ctx context.Context, log logger, job *store.SyncJob, batch *source.Batch, progress *store.JobProgress) error {
	var docs []store.Document
	for _, item := range batch.Items {
		parsed, err := parser.Parse(job.Family, item.Payload)
		if err != nil {
			progress.ParseFailCount++
			progress.ProgressCount++
			log.Warn("skipping unparseable document", "nsu", item.NSU, "error", err)
			continue
		}

		if !inPeriod(job, parsed.IssuedAt) {
			progress.ProgressCount++
			continue
		}

		doc := parser.ToDocument(parsed, job.Family)
		doc.ID = uuid.New()
		doc.TenantID = job.TenantID
		doc.ClientID = job.ClientID
		doc.NSU = item.NSU
		doc.RawPayload = item.Payload
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil
	}

	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.AccessKey
	}

	existing := make(map[string]bool, len(keys))
	missingArtifact := make(map[string]bool)
	for start := 0; start < len(keys); start += store.DedupPageSize {
		end := start + store.DedupPageSize
		if end > len(keys) {
			end = len(keys)
		}
		page := keys[start:end]

		// Suspension point between pages: existence queries are where a
		// big backlog spends its time.
		pageExisting, err := e.store.FilterExistingKeys(ctx, job.TenantID, page)
		if err != nil {
			return fmt.Errorf("existence check failed: %w", err)
		}
		for k := range pageExisting {
			existing[k] = true
		}

		var existingPage []string
		for _, k := range page {
			if pageExisting[k] {
				existingPage = append(existingPage, k)
			}
		}
		missing, err := e.store.FilterMissingArtifact(ctx, job.TenantID, existingPage)
		if err != nil {
			return fmt.Errorf("artifact check failed: %w", err)
		}
		for _, k := range missing {
			missingArtifact[k] = true
		}
	}

	for i := range docs {
		doc := &docs[i]

		if existing[doc.AccessKey] {
			// The row is already there, but this sighting may carry a
			// status transition (authorized -> cancelled) or a fresher
			// cursor. The merge applies the restricted field set.
			if _, err := e.store.UpsertDocument(ctx, nil, doc); err != nil {
				return fmt.Errorf("persist failed for %s: %w", doc.AccessKey, err)
			}
			progress.ExistingCount++
			progress.ProgressCount++
			// A prior run may still owe this document an artifact.
			if missingArtifact[doc.AccessKey] {
				progress.Stage = StageArtifactFix
				e.renderArtifact(ctx, log, job, doc, progress)
			}
			continue
		}

		inserted, err := e.store.UpsertDocument(ctx, nil, doc)
		if err != nil {
			return fmt.Errorf("persist failed for %s: %w", doc.AccessKey, err)
		}
		if inserted {
			progress.NewCount++
		} else {
			// Concurrent path won the insert race; that is success.
			progress.ExistingCount++
		}
		progress.ProgressCount++

		e.renderArtifact(ctx, log, job, doc, progress)
	}
	return nil
}

// renderArtifact renders the secondary artifact for a document. Failures
// are counted and logged, never escalated: the two-tier dedup picks the
// document up again on the next run.
func (e *Engine) renderArtifact(ctx context.Context, log logger, job *store.SyncJob, doc *store.Document, progress *store.JobProgress) {
	if e.renderer == nil {
		return
	}

	url, err := e.renderer.Render(ctx, doc)
	if err != nil {
		progress.ArtifactFailCount++
		log.Warn("artifact render failed", "access_key", doc.AccessKey, "error", err)
		return
	}
	if err := e.store.SetArtifactURL(ctx, job.TenantID, doc.AccessKey, url); err != nil {
		progress.ArtifactFailCount++
		log.Warn("artifact url update failed", "access_key", doc.AccessKey, "error", err)
		return
	}
	progress.ArtifactOKCount++
}

func inPeriod(job *store.SyncJob, issuedAt time.Time) bool {
	if job.Mode != store.JobModePeriod {
		return true
	}
	if job.PeriodStart != nil && issuedAt.Before(*job.PeriodStart) {
		return false
	}
	if job.PeriodEnd != nil && issuedAt.After(*job.PeriodEnd) {
		return false
	}
	return true
}

// classifyFailure maps a loop error to the short, user-visible reason
// stored on the job. Raw causes never reach the row.
func classifyFailure(err error) (reason string, certificateExpired bool) {
	switch {
	case errors.Is(err, errCertificateExpired), source.IsCertificateExpiry(err):
		return "certificate expired", true
	case errors.Is(err, store.ErrNoCertificate):
		return "no active certificate for client", false
	case errors.Is(err, errCursorStuck):
		return "remote source reports pending documents but returns none", false
	}

	var srcErr *source.Error
	if errors.As(err, &srcErr) {
		return srcErr.Reason, false
	}
	return "synchronization failed", false
}
