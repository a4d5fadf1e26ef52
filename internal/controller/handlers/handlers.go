// Package handlers contains HTTP handlers for the control API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fiscalsync/internal/engine"
	"fiscalsync/internal/store"
	"fiscalsync/pkg/api"

	"github.com/google/uuid"
)

// StoreFactory combines the store interfaces the control API needs.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.TenantStore
	store.ClientStore
	store.JobLogStore
}

// Syncer is the slice of the engine the API drives.
type Syncer interface {
	StartJob(ctx context.Context, req engine.StartRequest) (uuid.UUID, error)
	CancelJob(ctx context.Context, jobID uuid.UUID) error
	CancelAllForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
	PurgeTenantDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error)
	ResumeJob(ctx context.Context, jobID uuid.UUID) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store  StoreFactory
	engine Syncer
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, e Syncer) *Handlers {
	return &Handlers{store: s, engine: e}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func jobToResponse(j *store.SyncJob) api.JobResponse {
	return api.JobResponse{
		ID:                 j.ID.String(),
		ClientID:           j.ClientID.String(),
		Kind:               string(j.Kind),
		Family:             string(j.Family),
		Status:             string(j.Status),
		Mode:               string(j.Mode),
		PeriodStart:        j.PeriodStart,
		PeriodEnd:          j.PeriodEnd,
		ExpectedTotal:      j.ExpectedTotal,
		ProgressCount:      j.ProgressCount,
		LastSeenNSU:        j.LastSeenNSU,
		NewCount:           j.NewCount,
		ExistingCount:      j.ExistingCount,
		ArtifactOKCount:    j.ArtifactOKCount,
		ArtifactFailCount:  j.ArtifactFailCount,
		ParseFailCount:     j.ParseFailCount,
		Attempt:            j.Attempt,
		Stage:              j.Stage,
		LastError:          j.LastError,
		CertificateExpired: j.CertificateExpired,
		StartedAt:          j.StartedAt,
		FinishedAt:         j.FinishedAt,
		CreatedAt:          j.CreatedAt,
	}
}

func parsePeriod(start, end *time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	return !end.Before(*start)
}
