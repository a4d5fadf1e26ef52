package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"fiscalsync/internal/controller/middleware"
	"fiscalsync/internal/store"
	"fiscalsync/pkg/api"

	"github.com/google/uuid"
)

// CreateClient handles POST /clients.
func (h *Handlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.TaxID == "" {
		h.httpError(w, "Name and TaxID are required", http.StatusBadRequest)
		return
	}

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	client := &store.Client{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      req.Name,
		TaxID:     req.TaxID,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.CreateClient(ctx, nil, client); err != nil {
		h.httpError(w, "Failed to create client", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.CreateClientResponse{ClientID: client.ID.String()})
}

// PutCertificate handles PUT /clients/{id}/certificate.
// The uploaded certificate becomes the client's active one.
func (h *Handlers) PutCertificate(w http.ResponseWriter, r *http.Request) {
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

	var req api.PutCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	material, err := base64.StdEncoding.DecodeString(req.Material)
	if err != nil || len(material) == 0 {
		h.httpError(w, "Invalid certificate material", http.StatusBadRequest)
		return
	}
	if req.NotAfter.IsZero() {
		h.httpError(w, "NotAfter is required", http.StatusBadRequest)
		return
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	cert := &store.Certificate{
		ID:        uuid.New(),
		ClientID:  clientID,
		Material:  material,
		NotAfter:  req.NotAfter,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.PutCertificate(ctx, tx, cert); err != nil {
		h.httpError(w, "Failed to store certificate", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusNoContent, nil)
}
