// Package artifact renders the secondary artifact (a PDF) for persisted
// documents by calling an external render service.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fiscalsync/internal/store"
)

// Renderer posts the raw document payload to a render service and
// returns the URL of the stored PDF.
type Renderer struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a renderer for the given service URL.
func New(baseURL string) *Renderer {
	return &Renderer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type renderRequest struct {
	Family    string `json:"family"`
	AccessKey string `json:"access_key"`
	Payload   []byte `json:"payload"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Render submits one document and returns the rendered artifact's URL.
func (r *Renderer) Render(ctx context.Context, doc *store.Document) (string, error) {
	body, err := json.Marshal(renderRequest{
		Family:    string(doc.Family),
		AccessKey: doc.AccessKey,
		Payload:   doc.RawPayload,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render service returned status %d", resp.StatusCode)
	}

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("render service returned an unreadable response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("render service returned an empty url")
	}
	return out.URL, nil
}
