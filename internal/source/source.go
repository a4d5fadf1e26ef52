// Package source talks to the government document distribution endpoint.
//
// The remote protocol is fixed: a mutual-TLS HTTPS GET parameterized by
// the starting cursor, returning a JSON batch of Base64-encoded raw
// documents with their own cursors plus the highest cursor known to
// exist server-side.
package source

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fiscalsync/internal/store"

	"golang.org/x/time/rate"
)

// Item is one raw document from a batch, cursor included.
type Item struct {
	NSU     int64
	Payload []byte
}

// Batch is one page of the remote document feed.
type Batch struct {
	Items       []Item
	MaxKnownNSU int64
}

// Source is the remote document feed as the engine sees it.
type Source interface {
	// FetchBatch returns documents with cursors strictly after afterNSU.
	// An empty batch with MaxKnownNSU <= afterNSU means caught up.
	FetchBatch(ctx context.Context, cert *store.Certificate, client *store.Client, family store.DocumentFamily, afterNSU int64) (*Batch, error)
}

// Config holds the remote endpoint settings.
type Config struct {
	BaseURL string

	// RequestTimeout bounds a single fetch.
	RequestTimeout time.Duration

	// PerCertInterval is the minimum spacing between requests made with
	// the same certificate. Bursts across distinct certificates are fine;
	// sustained per-certificate rates are not.
	PerCertInterval time.Duration
}

// Client is the HTTP implementation of Source.
type Client struct {
	cfg Config

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	httpClients map[string]*http.Client
}

// NewClient creates a remote source client.
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.PerCertInterval <= 0 {
		cfg.PerCertInterval = 2 * time.Second
	}
	return &Client{
		cfg:         cfg,
		limiters:    make(map[string]*rate.Limiter),
		httpClients: make(map[string]*http.Client),
	}
}

type batchResponse struct {
	Status    int    `json:"status"`
	MaxNSU    int64  `json:"maxNsu"`
	Documents []struct {
		NSU     int64  `json:"nsu"`
		Payload string `json:"payload"`
	} `json:"documents"`
}

// FetchBatch performs one paged fetch. The per-certificate limiter is
// awaited first, so the wait itself is a cancellation point.
func (c *Client) FetchBatch(ctx context.Context, cert *store.Certificate, client *store.Client, family store.DocumentFamily, afterNSU int64) (*Batch, error) {
	if err := c.limiterFor(cert.ID.String()).Wait(ctx); err != nil {
		return nil, err
	}

	httpClient, err := c.httpClientFor(cert)
	if err != nil {
		return nil, &Error{Kind: KindCertificate, Reason: "certificate could not be loaded", cause: err}
	}

	url := fmt.Sprintf("%s/documents/%s/after/%d?client=%s&batch=true",
		c.cfg.BaseURL, family, afterNSU, client.TaxID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return nil, &Error{
			Kind:   kind,
			Reason: fmt.Sprintf("remote source returned HTTP %d", resp.StatusCode),
		}
	}

	var body batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Kind: KindTransient, Reason: "remote source returned an unreadable response", cause: err}
	}

	batch := &Batch{MaxKnownNSU: body.MaxNSU}
	for _, d := range body.Documents {
		payload, err := base64.StdEncoding.DecodeString(d.Payload)
		if err != nil {
			// One undecodable document must not sink the batch; hand it
			// to the engine with an empty payload so the parse failure
			// is counted there.
			payload = nil
		}
		batch.Items = append(batch.Items, Item{NSU: d.NSU, Payload: payload})
	}
	return batch, nil
}

func (c *Client) limiterFor(certID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.limiters[certID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(c.cfg.PerCertInterval), 1)
	c.limiters[certID] = l
	return l
}

// httpClientFor builds (and caches) the mutual-TLS client for a
// certificate. The material is a PEM bundle holding the client
// certificate and its key.
func (c *Client) httpClientFor(cert *store.Certificate) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cert.ID.String()
	if hc, ok := c.httpClients[key]; ok {
		return hc, nil
	}

	pair, err := tls.X509KeyPair(cert.Material, cert.Material)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate material: %w", err)
	}

	hc := &http.Client{
		Timeout: c.cfg.RequestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{pair},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
	c.httpClients[key] = hc
	return hc, nil
}
