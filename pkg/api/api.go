// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the control API.
package api

import "time"

// CreateTenantRequest is the request body for creating a new tenant.
type CreateTenantRequest struct {
	Name           string `json:"name"`
	RateLimit      int    `json:"rate_limit,omitempty"`
	RateLimitBurst int    `json:"rate_limit_burst,omitempty"`
}

// CreateTenantResponse is the response body after creating a tenant.
type CreateTenantResponse struct {
	ID     string `json:"tenant_id"`
	Name   string `json:"name"`
	ApiKey string `json:"api_key"`
}

// CreateClientRequest is the request body for registering a client company.
type CreateClientRequest struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

// CreateClientResponse is the response body after registering a client.
type CreateClientResponse struct {
	ClientID string `json:"client_id"`
}

// PutCertificateRequest uploads a new active certificate for a client.
// Material is the Base64-encoded PEM bundle.
type PutCertificateRequest struct {
	Material string    `json:"material"`
	NotAfter time.Time `json:"not_after"`
}

// StartSyncRequest is the request body for starting a synchronization run.
type StartSyncRequest struct {
	Family      string     `json:"family"`
	Mode        string     `json:"mode"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// StartSyncResponse is the response body after starting a run.
type StartSyncResponse struct {
	JobID string `json:"job_id"`
}

// JobResponse is a snapshot of a synchronization run.
type JobResponse struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Kind     string `json:"kind"`
	Family   string `json:"family"`
	Status   string `json:"status"`
	Mode     string `json:"mode"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	ExpectedTotal int64 `json:"expected_total"`
	ProgressCount int64 `json:"progress_count"`
	LastSeenNSU   int64 `json:"last_seen_nsu"`

	NewCount          int64 `json:"new_count"`
	ExistingCount     int64 `json:"existing_count"`
	ArtifactOKCount   int64 `json:"artifact_ok_count"`
	ArtifactFailCount int64 `json:"artifact_fail_count"`
	ParseFailCount    int64 `json:"parse_fail_count"`

	Attempt            int     `json:"attempt"`
	Stage              string  `json:"stage"`
	LastError          *string `json:"last_error,omitempty"`
	CertificateExpired bool    `json:"certificate_expired"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ListJobsResponse is the response body for the recent-jobs listing.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// CountResponse reports how many rows a bulk operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
