package artifact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

func testDocument() *store.Document {
	return &store.Document{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		Family:     store.FamilyInvoices,
		AccessKey:  "35260112345678000190550010000000011000000010",
		RawPayload: []byte("<nfse/>"),
	}
}

func TestRender_Success(t *testing.T) {
	var got renderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(renderResponse{URL: "https://artifacts.internal/doc.pdf"})
	}))
	defer server.Close()

	r := New(server.URL)
	doc := testDocument()

	url, err := r.Render(context.Background(), doc)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if url != "https://artifacts.internal/doc.pdf" {
		t.Errorf("got url %q", url)
	}
	if got.AccessKey != doc.AccessKey {
		t.Errorf("expected access key %s sent to render service, got %s", doc.AccessKey, got.AccessKey)
	}
	if got.Family != string(store.FamilyInvoices) {
		t.Errorf("expected family invoices, got %s", got.Family)
	}
}

func TestRender_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "render backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	r := New(server.URL)
	if _, err := r.Render(context.Background(), testDocument()); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestRender_EmptyURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(renderResponse{})
	}))
	defer server.Close()

	r := New(server.URL)
	if _, err := r.Render(context.Background(), testDocument()); err == nil {
		t.Error("expected error for empty artifact url")
	}
}

func TestRender_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(renderResponse{URL: "https://artifacts.internal/doc.pdf"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(server.URL)
	if _, err := r.Render(ctx, testDocument()); err == nil {
		t.Error("expected error for cancelled context")
	}
}
