package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fiscalsync/pkg/api"
)

func TestCreateTenant(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockSetup      func(*mockStore)
		expectedStatus int
	}{
		{
			name:           "Success",
			body:           `{"name": "acme-accounting"}`,
			mockSetup:      func(m *mockStore) {},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Success With Rate Limit",
			body:           `{"name": "acme-accounting", "rate_limit": 10, "rate_limit_burst": 20}`,
			mockSetup:      func(m *mockStore) {},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Missing Name",
			body:           `{}`,
			mockSetup:      func(m *mockStore) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid Body",
			body:           `{invalid-json}`,
			mockSetup:      func(m *mockStore) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Store Error",
			body: `{"name": "acme-accounting"}`,
			mockSetup: func(m *mockStore) {
				m.createTenantErr = errors.New("db failed")
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockStore{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}

			h := New(mock, &mockSyncer{})

			mux := http.NewServeMux()
			mux.HandleFunc("POST /tenants", h.CreateTenant)

			req := httptest.NewRequest(http.MethodPost, "/tenants", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()

			mux.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %d want %d", rr.Code, tt.expectedStatus)
			}

			if tt.expectedStatus == http.StatusOK {
				var resp api.CreateTenantResponse
				if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				// The API key is returned exactly once, at creation.
				if resp.ApiKey == "" {
					t.Error("expected a non-empty api key in the response")
				}
				if resp.Name != "acme-accounting" {
					t.Errorf("expected name acme-accounting, got %q", resp.Name)
				}
				if mock.createdTenant == nil {
					t.Fatal("expected tenant to be persisted")
				}
			}
		})
	}
}
