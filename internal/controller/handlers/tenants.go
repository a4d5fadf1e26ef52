package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"fiscalsync/internal/auth"
	"fiscalsync/internal/store"
	"fiscalsync/pkg/api"

	"github.com/google/uuid"
)

// CreateTenant handles POST /tenants.
// Bootstrap endpoint: it returns the API key exactly once.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.httpError(w, "Name is required", http.StatusBadRequest)
		return
	}

	key, err := auth.NewKey()
	if err != nil {
		h.httpError(w, "Failed to generate API key", http.StatusInternalServerError)
		return
	}

	tenant := &store.Tenant{
		ID:             uuid.New(),
		Name:           req.Name,
		RateLimit:      req.RateLimit,
		RateLimitBurst: req.RateLimitBurst,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.store.CreateTenant(ctx, tenant, auth.HashKey(key)); err != nil {
		h.httpError(w, "Failed to create tenant", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.CreateTenantResponse{
		ID:     tenant.ID.String(),
		Name:   tenant.Name,
		ApiKey: key,
	})
}
