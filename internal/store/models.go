// Package store contains the database layer for fiscalsync.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a tenant in the multi-tenant system.
// All operations must be scoped by TenantID.
type Tenant struct {
	ID             uuid.UUID
	Name           string
	RateLimit      int
	RateLimitBurst int
	CreatedAt      time.Time
}

// Client represents a client company whose fiscal documents we download.
type Client struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	TaxID     string // identifies the client at the remote source
	CreatedAt time.Time
}

// Certificate is a digital certificate used for mutual TLS against the
// remote source. The material is opaque to the engine; only NotAfter is
// inspected.
type Certificate struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	Material  []byte // PEM bundle: client certificate + private key
	NotAfter  time.Time
	Active    bool
	CreatedAt time.Time
}

// DocumentFamily distinguishes the two document streams a client can sync.
type DocumentFamily string

const (
	FamilyInvoices DocumentFamily = "invoices"
	FamilyWaybills DocumentFamily = "waybills"
)

// JobKind records whether a run was requested by a user or by the scheduler.
type JobKind string

const (
	JobKindManual    JobKind = "manual"
	JobKindScheduled JobKind = "scheduled"
)

// JobMode selects between "whatever is new" and a fixed date range.
type JobMode string

const (
	JobModeIncremental JobMode = "incremental"
	JobModePeriod      JobMode = "period"
)

// JobStatus represents the state of a synchronization run.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusResuming  JobStatus = "resuming"
)

// Active reports whether the status counts against the single-flight rule.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusResuming
}

// Terminal reports whether the job can make no further progress.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// SyncJob is one synchronization run for one client. The row is the system
// of record for progress, resumption parameters and cancellation.
type SyncJob struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	TenantID uuid.UUID

	Kind   JobKind
	Family DocumentFamily
	Status JobStatus
	Mode   JobMode

	// Period bounds are set only when Mode is period and are immutable
	// after creation. Resumptions must carry them unchanged.
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	ExpectedTotal int64
	ProgressCount int64
	LastSeenNSU   int64

	NewCount          int64
	ExistingCount     int64
	ArtifactOKCount   int64
	ArtifactFailCount int64
	ParseFailCount    int64

	Attempt            int
	Stage              string
	LastError          *string
	CertificateExpired bool

	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// JobProgress carries the counters the engine writes after each batch.
// The stall monitor never writes these fields; they are owned by the loop.
type JobProgress struct {
	ExpectedTotal     int64
	ProgressCount     int64
	LastSeenNSU       int64
	NewCount          int64
	ExistingCount     int64
	ArtifactOKCount   int64
	ArtifactFailCount int64
	ParseFailCount    int64
	Stage             string
}

// Watermark is the per (client, family) sync cursor pair.
type Watermark struct {
	ClientID      uuid.UUID
	TenantID      uuid.UUID
	Family        DocumentFamily
	LastSeenNSU   int64
	MaxKnownNSU   int64
	LastQueriedAt time.Time
}

// Lag reports how far behind the remote source this watermark is.
func (w Watermark) Lag() int64 {
	if w.MaxKnownNSU <= w.LastSeenNSU {
		return 0
	}
	return w.MaxKnownNSU - w.LastSeenNSU
}

// DocumentStatus is the fiscal status of a persisted document.
type DocumentStatus string

const (
	DocumentStatusValid     DocumentStatus = "valid"
	DocumentStatusCancelled DocumentStatus = "cancelled"
)

// Document is a persisted fiscal record. AccessKey is the natural key,
// unique per tenant.
type Document struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	ClientID uuid.UUID
	Family   DocumentFamily

	AccessKey string
	NSU       int64
	IssuedAt  time.Time

	EmitterTaxID   string
	EmitterName    string
	RecipientTaxID string
	RecipientName  string
	AmountCents    int64
	Status         DocumentStatus
	ArtifactURL    *string // rendered PDF, filled in after the document itself

	RawPayload []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
