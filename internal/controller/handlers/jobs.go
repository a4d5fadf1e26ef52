package handlers

import (
	"net/http"
	"strconv"

	"fiscalsync/internal/controller/middleware"
	"fiscalsync/pkg/api"

	"github.com/google/uuid"
)

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, ok := h.authorizeJob(w, r, jobID)
	if !ok {
		return
	}

	h.respondJson(w, http.StatusOK, jobToResponse(job))
}

// ListJobs handles GET /jobs: the tenant's recent runs, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	jobs, err := h.store.ListRecentJobs(ctx, tenantID, limit)
	if err != nil {
		h.httpError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := api.ListJobsResponse{Jobs: make([]api.JobResponse, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(&jobs[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ClearTerminalJobs handles DELETE /jobs/terminal. Running jobs are
// never removed by this endpoint.
func (h *Handlers) ClearTerminalJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := h.store.ClearTerminalJobs(ctx, tenantID)
	if err != nil {
		h.httpError(w, "Failed to clear job history", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.CountResponse{Count: n})
}
