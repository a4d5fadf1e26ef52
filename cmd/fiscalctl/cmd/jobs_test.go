package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fiscalsync/pkg/api"

	"github.com/spf13/viper"
)

func TestJobsCommand_Success(t *testing.T) {
	resetViper()

	started := time.Now().Add(-3 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got: %s", r.URL.Query().Get("limit"))
		}

		resp := api.ListJobsResponse{Jobs: []api.JobResponse{
			{
				ID:          "job-1",
				ClientID:    "client-1",
				Family:      "invoices",
				Mode:        "incremental",
				Status:      "completed",
				NewCount:    7,
				LastSeenNSU: 4200,
				StartedAt:   &started,
			},
			{
				ID:       "job-2",
				ClientID: "client-2",
				Family:   "waybills",
				Mode:     "period",
				Status:   "running",
			},
		}}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"jobs", "--limit", "5"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "job-1") || !strings.Contains(output, "job-2") {
		t.Errorf("expected both jobs in output, got: %s", output)
	}
	if !strings.Contains(output, "STATUS") {
		t.Errorf("expected table header, got: %s", output)
	}
	if !strings.Contains(output, "4200") {
		t.Errorf("expected cursor column, got: %s", output)
	}
}

func TestJobsCommand_Empty(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.ListJobsResponse{Jobs: []api.JobResponse{}})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"jobs"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "No synchronization runs found") {
		t.Errorf("expected empty message, got: %s", stdout.String())
	}
}
