package snapshot

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Provider hands the alert manager the latest fleet snapshot once per
// evaluation cycle.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Shared HTTP client with connection pooling for introspection requests
var (
	introspectionClient *http.Client
	clientOnce          sync.Once
)

func getHTTPClient(timeout time.Duration) *http.Client {
	clientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,

			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
				MinVersion:         tls.VersionTLS12,
			},

			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,

			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		}

		introspectionClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	})

	return introspectionClient
}

// HTTPProvider pulls snapshots from the cluster-introspection API
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  getHTTPClient(timeout),
	}
}

func (p *HTTPProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	url := fmt.Sprintf("%s/api/v1/fleet/snapshot", p.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspection API returned status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}

	return &snap, nil
}

// PushProvider serves the last snapshot pushed by a collaborator over the
// HTTP API. Used when no introspection base URL is configured.
type PushProvider struct {
	mu   sync.RWMutex
	last *Snapshot
}

func NewPushProvider() *PushProvider {
	return &PushProvider{}
}

// Set replaces the current snapshot
func (p *PushProvider) Set(snap *Snapshot) {
	if snap == nil {
		return
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()
}

func (p *PushProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.last == nil {
		return nil, fmt.Errorf("no snapshot received yet")
	}
	return p.last, nil
}
