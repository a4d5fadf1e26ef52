package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by store implementations. Callers branch on
// these; the underlying driver error is wrapped, never replaced.
var (
	// ErrJobVanished is returned when a job row no longer exists. The
	// engine treats this identically to cancellation: a tenant-wide purge
	// deletes job rows out from under running loops.
	ErrJobVanished = errors.New("sync job no longer exists")

	// ErrActiveJobExists is returned when creating a job would violate
	// the one-active-job-per-client-and-family rule.
	ErrActiveJobExists = errors.New("client already has an active sync job for this family")

	// ErrNoCertificate is returned when a client has no active certificate.
	ErrNoCertificate = errors.New("client has no active certificate")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles tenant records and API-key authentication.
type TenantStore interface {
	// CreateTenant inserts a new tenant to the database.
	CreateTenant(ctx context.Context, tenant *Tenant, hashedKey string) error

	// GetTenantByID returns a tenant by its ID.
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetTenantByAPIKeyHash returns a tenant by its API key hash.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)
}

// ClientStore handles client companies and their certificates.
type ClientStore interface {
	// CreateClient inserts a new client company.
	CreateClient(ctx context.Context, tx DBTransaction, client *Client) error

	// GetClientByID returns a client by its ID.
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)

	// ListClients returns all clients of a tenant.
	ListClients(ctx context.Context, tenantID uuid.UUID) ([]Client, error)

	// ListAllClients returns every client across tenants. Used by the
	// scheduler to fan out incremental runs.
	ListAllClients(ctx context.Context) ([]Client, error)

	// GetActiveCertificate returns the single active certificate of a
	// client, or ErrNoCertificate.
	GetActiveCertificate(ctx context.Context, clientID uuid.UUID) (*Certificate, error)

	// PutCertificate stores a certificate and marks it active, demoting
	// any previously active one for the same client.
	PutCertificate(ctx context.Context, tx DBTransaction, cert *Certificate) error
}

// JobLogStore is the system of record for synchronization runs.
//
// Ownership is split: the engine loop owns progress counters and the
// completed transition; the stall monitor only ever touches status,
// attempt and error fields. This split is what keeps their concurrent
// writes from losing updates.
type JobLogStore interface {
	// CreateJob inserts a new pending job. Returns ErrActiveJobExists
	// when the client already has an active job for the same family.
	CreateJob(ctx context.Context, tx DBTransaction, job *SyncJob) error

	// GetJobByID returns a job, or ErrJobVanished when the row is gone.
	GetJobByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)

	// GetJobStatus reads the current status fresh from the database.
	// Returns ErrJobVanished when the row is gone. Called at every
	// suspension point of the loop; never cached.
	GetJobStatus(ctx context.Context, id uuid.UUID) (JobStatus, error)

	// ClaimJob transitions pending/resuming -> running and stamps
	// started_at. Returns ErrJobVanished when the row is gone and
	// ErrActiveJobExists semantics do not apply here (claim is only
	// called by the loop that created or resumed the job).
	ClaimJob(ctx context.Context, id uuid.UUID, stage string) error

	// UpdateProgress writes the loop-owned counters and stage.
	UpdateProgress(ctx context.Context, id uuid.UUID, p JobProgress) error

	// MarkCompleted finalizes a successful run.
	MarkCompleted(ctx context.Context, id uuid.UUID, stage string) error

	// MarkFailed finalizes a failed run with a classified reason.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, certificateExpired bool) error

	// MarkCancelled stamps the cancelled status and finished_at. It only
	// affects active jobs; terminal jobs are left untouched.
	MarkCancelled(ctx context.Context, id uuid.UUID) error

	// MarkResuming transitions running/failed -> resuming and increments
	// attempt. Used by the stall monitor and the explicit resume action.
	MarkResuming(ctx context.Context, id uuid.UUID, stage string) error

	// DeleteJob removes the row. Used to prune incremental runs that
	// found nothing.
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// ListRecentJobs returns a tenant's jobs, newest first.
	ListRecentJobs(ctx context.Context, tenantID uuid.UUID, limit int) ([]SyncJob, error)

	// ListStalledJobs returns running jobs whose started_at is older than
	// the cutoff, across all tenants.
	ListStalledJobs(ctx context.Context, cutoff time.Time) ([]SyncJob, error)

	// CountActiveJobs returns the number of active jobs across tenants.
	// Backs the metrics gauge.
	CountActiveJobs(ctx context.Context) (int64, error)

	// CancelActiveJobs cancels every pending/running/resuming job of a
	// tenant and returns how many were cancelled.
	CancelActiveJobs(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// ClearTerminalJobs deletes completed/failed/cancelled history for a
	// tenant, never active rows.
	ClearTerminalJobs(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// WatermarkStore persists the per (client, family) NSU cursor pair.
type WatermarkStore interface {
	// GetWatermark returns the watermark, or a zero-valued one when the
	// client has never synced this family.
	GetWatermark(ctx context.Context, clientID uuid.UUID, family DocumentFamily) (*Watermark, error)

	// AdvanceWatermark upserts the cursor pair. last_seen_nsu never
	// regresses; the store applies GREATEST() so callers cannot roll it
	// back accidentally.
	AdvanceWatermark(ctx context.Context, w *Watermark) error

	// ResetWatermark is the explicit administrative rollback.
	ResetWatermark(ctx context.Context, clientID uuid.UUID, family DocumentFamily) error

	// TotalLag sums max_known_nsu - last_seen_nsu over all watermarks.
	TotalLag(ctx context.Context) (int64, error)
}

// DocumentStore persists fiscal documents with idempotent upserts and
// answers batched existence queries for deduplication.
type DocumentStore interface {
	// FilterExistingKeys returns the subset of keys already persisted for
	// the tenant. Callers page the input; implementations must accept up
	// to DedupPageSize keys per call.
	FilterExistingKeys(ctx context.Context, tenantID uuid.UUID, keys []string) (map[string]bool, error)

	// FilterMissingArtifact returns the subset of keys that are persisted
	// but still lack a rendered artifact.
	FilterMissingArtifact(ctx context.Context, tenantID uuid.UUID, keys []string) ([]string, error)

	// UpsertDocument inserts or merges by (tenant_id, access_key).
	// Returns true when a new row was inserted. Populated business
	// fields are never overwritten with blanks.
	UpsertDocument(ctx context.Context, tx DBTransaction, doc *Document) (bool, error)

	// SetArtifactURL records the rendered artifact for a document.
	SetArtifactURL(ctx context.Context, tenantID uuid.UUID, accessKey, url string) error

	// MinNSUForPeriod returns the smallest NSU among persisted documents
	// of the client and family issued at or after start. Returns 0 when
	// none exist, which callers treat as "scan from the beginning".
	MinNSUForPeriod(ctx context.Context, clientID uuid.UUID, family DocumentFamily, start time.Time) (int64, error)

	// CountDocuments returns the number of documents of a tenant.
	CountDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// DeleteTenantDocuments removes all documents of a tenant. Only used
	// by the purge path, after active jobs were cancelled and given time
	// to observe it.
	DeleteTenantDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// DedupPageSize bounds the number of access keys per existence query so
// parameter lists stay bounded.
const DedupPageSize = 500
