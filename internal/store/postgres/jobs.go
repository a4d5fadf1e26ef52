package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fiscalsync/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const jobColumns = `id, client_id, tenant_id, kind, family, status, mode,
	period_start, period_end, expected_total, progress_count, last_seen_nsu,
	new_count, existing_count, artifact_ok_count, artifact_fail_count, parse_fail_count,
	attempt, stage, last_error, certificate_expired, started_at, finished_at, created_at`

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*store.SyncJob, error) {
	var j store.SyncJob
	err := row.Scan(
		&j.ID, &j.ClientID, &j.TenantID, &j.Kind, &j.Family, &j.Status, &j.Mode,
		&j.PeriodStart, &j.PeriodEnd, &j.ExpectedTotal, &j.ProgressCount, &j.LastSeenNSU,
		&j.NewCount, &j.ExistingCount, &j.ArtifactOKCount, &j.ArtifactFailCount, &j.ParseFailCount,
		&j.Attempt, &j.Stage, &j.LastError, &j.CertificateExpired, &j.StartedAt, &j.FinishedAt, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts a new pending job. The partial unique index on
// (client_id, family) over active statuses enforces single-flight; a
// conflict maps to ErrActiveJobExists.
func (s *Store) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.SyncJob) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO sync_jobs (id, client_id, tenant_id, kind, family, status, mode,
			period_start, period_end, attempt, stage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := executor.ExecContext(ctx, query,
		job.ID, job.ClientID, job.TenantID, job.Kind, job.Family, job.Status, job.Mode,
		job.PeriodStart, job.PeriodEnd, job.Attempt, job.Stage, job.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrActiveJobExists
		}
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*store.SyncJob, error) {
	query := fmt.Sprintf("SELECT %s FROM sync_jobs WHERE id = $1", jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobVanished
		}
		return nil, err
	}
	return job, nil
}

// GetJobStatus reads the status fresh. The loop calls this at every
// suspension point; a missing row means the job was purged and is
// reported as ErrJobVanished.
func (s *Store) GetJobStatus(ctx context.Context, id uuid.UUID) (store.JobStatus, error) {
	var status store.JobStatus
	err := s.db.QueryRowContext(ctx, "SELECT status FROM sync_jobs WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrJobVanished
		}
		return "", err
	}
	return status, nil
}

// ClaimJob transitions pending/resuming -> running. started_at is only
// stamped on the first claim so stall detection measures the whole run.
func (s *Store) ClaimJob(ctx context.Context, id uuid.UUID, stage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, stage = $2, started_at = COALESCE(started_at, NOW())
		WHERE id = $3 AND status IN ($4, $5)
	`, store.JobStatusRunning, stage, id, store.JobStatusPending, store.JobStatusResuming)
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the row is gone or someone moved it out of a claimable
		// state; the caller re-reads the status to find out which.
		return store.ErrJobVanished
	}
	return nil
}

// UpdateProgress writes the counters owned by the engine loop. The stall
// monitor never writes these columns.
func (s *Store) UpdateProgress(ctx context.Context, id uuid.UUID, p store.JobProgress) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET expected_total = $1, progress_count = $2, last_seen_nsu = $3,
			new_count = $4, existing_count = $5,
			artifact_ok_count = $6, artifact_fail_count = $7, parse_fail_count = $8,
			stage = $9
		WHERE id = $10
	`, p.ExpectedTotal, p.ProgressCount, p.LastSeenNSU,
		p.NewCount, p.ExistingCount,
		p.ArtifactOKCount, p.ArtifactFailCount, p.ParseFailCount,
		p.Stage, id)
	if err != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", id, err)
	}
	return nil
}

// MarkCompleted finalizes a successful run. Guarded on running so a
// cancellation that raced the last batch is not overwritten.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, stage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, stage = $2, finished_at = NOW()
		WHERE id = $3 AND status = $4
	`, store.JobStatusCompleted, stage, id, store.JobStatusRunning)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string, certificateExpired bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, last_error = $2, stage = $2, certificate_expired = $3, finished_at = NOW()
		WHERE id = $4
	`, store.JobStatusFailed, reason, certificateExpired, id)
	return err
}

func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, stage = $2, finished_at = NOW()
		WHERE id = $3 AND status IN ($4, $5, $6)
	`, store.JobStatusCancelled, "cancelled by request", id,
		store.JobStatusPending, store.JobStatusRunning, store.JobStatusResuming)
	return err
}

// MarkResuming increments attempt and moves the job back into the loop's
// claimable set. Only the status, attempt and stage columns are written.
func (s *Store) MarkResuming(ctx context.Context, id uuid.UUID, stage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, stage = $2, attempt = attempt + 1
		WHERE id = $3 AND status IN ($4, $5)
	`, store.JobStatusResuming, stage, id, store.JobStatusRunning, store.JobStatusFailed)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrJobVanished
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_jobs WHERE id = $1", id)
	return err
}

func (s *Store) ListRecentJobs(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM sync_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []store.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Store) ListStalledJobs(ctx context.Context, cutoff time.Time) ([]store.SyncJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sync_jobs
		WHERE status = $1 AND started_at IS NOT NULL AND started_at < $2
		ORDER BY started_at ASC
	`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query, store.JobStatusRunning, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []store.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Store) CountActiveJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_jobs WHERE status IN ($1, $2, $3)
	`, store.JobStatusPending, store.JobStatusRunning, store.JobStatusResuming).Scan(&count)
	return count, err
}

func (s *Store) CancelActiveJobs(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, stage = $2, finished_at = NOW()
		WHERE tenant_id = $3 AND status IN ($4, $5, $6)
	`, store.JobStatusCancelled, "cancelled by request", tenantID,
		store.JobStatusPending, store.JobStatusRunning, store.JobStatusResuming)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ClearTerminalJobs(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_jobs
		WHERE tenant_id = $1 AND status IN ($2, $3, $4)
	`, tenantID, store.JobStatusCompleted, store.JobStatusFailed, store.JobStatusCancelled)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
