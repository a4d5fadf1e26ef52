package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"fiscalsync/internal/controller/middleware"
	"fiscalsync/internal/engine"
	"fiscalsync/internal/store"
	"fiscalsync/pkg/api"

	"github.com/google/uuid"
)

// StartSync handles POST /clients/{id}/sync.
// It opens a synchronization run for the client and returns the job id.
func (h *Handlers) StartSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid client id", http.StatusBadRequest)
		return
	}

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	client, err := h.store.GetClientByID(ctx, clientID)
	if err != nil || client.TenantID != tenantID {
		h.httpError(w, "Client not found", http.StatusNotFound)
		return
	}

	var req api.StartSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	family := store.DocumentFamily(req.Family)
	if family != store.FamilyInvoices && family != store.FamilyWaybills {
		h.httpError(w, "Family must be invoices or waybills", http.StatusBadRequest)
		return
	}

	mode := store.JobMode(req.Mode)
	switch mode {
	case "":
		mode = store.JobModeIncremental
	case store.JobModeIncremental:
	case store.JobModePeriod:
		if !parsePeriod(req.PeriodStart, req.PeriodEnd) {
			h.httpError(w, "Period mode requires a valid date range", http.StatusBadRequest)
			return
		}
	default:
		h.httpError(w, "Mode must be incremental or period", http.StatusBadRequest)
		return
	}

	jobID, err := h.engine.StartJob(ctx, engine.StartRequest{
		ClientID:    clientID,
		TenantID:    tenantID,
		Family:      family,
		Kind:        store.JobKindManual,
		Mode:        mode,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	})
	if err != nil {
		if errors.Is(err, store.ErrActiveJobExists) {
			h.httpError(w, "Client already has an active sync for this family", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to start sync", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.StartSyncResponse{JobID: jobID.String()})
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	if _, ok := h.authorizeJob(w, r, jobID); !ok {
		return
	}

	if err := h.engine.CancelJob(ctx, jobID); err != nil {
		h.httpError(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusNoContent, nil)
}

// ResumeJob handles POST /jobs/{id}/resume.
func (h *Handlers) ResumeJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	if _, ok := h.authorizeJob(w, r, jobID); !ok {
		return
	}

	if err := h.engine.ResumeJob(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobVanished) {
			h.httpError(w, "Job is not resumable", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to resume job", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusNoContent, nil)
}

// CancelAll handles POST /tenants/cancel-all.
func (h *Handlers) CancelAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := h.engine.CancelAllForTenant(ctx, tenantID)
	if err != nil {
		h.httpError(w, "Failed to cancel jobs", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.CountResponse{Count: n})
}

// PurgeDocuments handles DELETE /tenants/documents: cancel everything,
// wait for loops to observe it, then drop the tenant's documents.
func (h *Handlers) PurgeDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := h.engine.PurgeTenantDocuments(ctx, tenantID)
	if err != nil {
		h.httpError(w, "Failed to purge documents", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.CountResponse{Count: n})
}

// authorizeJob loads a job and checks it belongs to the caller's tenant.
func (h *Handlers) authorizeJob(w http.ResponseWriter, r *http.Request, jobID uuid.UUID) (*store.SyncJob, bool) {
	tenantID, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	job, err := h.store.GetJobByID(r.Context(), jobID)
	if err != nil || job.TenantID != tenantID {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return nil, false
	}
	return job, true
}
