// Package mission is the narrow contract against the external mission
// runner. Missions run asynchronously outside this service; both calls here
// return as soon as the runner has accepted the request.
package mission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Spec describes a new mission for the runner
type Spec struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Type        string            `json:"type"` // e.g. diagnose, diagnose_repair
	Cluster     string            `json:"cluster,omitempty"`
	Prompt      string            `json:"prompt"`
	Context     map[string]string `json:"context,omitempty"`
}

// Dispatcher starts missions and sends follow-up instructions. Completion
// and streaming output are observed by the UI layer over a separate channel.
type Dispatcher interface {
	StartMission(ctx context.Context, spec Spec) (string, error)
	SendMessage(ctx context.Context, missionID, text string) error
}

// HTTPDispatcher talks to the mission runner's REST API
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDispatcher(baseURL string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type startMissionResponse struct {
	MissionID string `json:"mission_id"`
}

// StartMission submits the spec and returns the runner-assigned mission id
func (d *HTTPDispatcher) StartMission(ctx context.Context, spec Spec) (string, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal mission spec: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/missions", d.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build mission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to start mission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("mission runner returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result startMissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode mission response: %w", err)
	}
	if result.MissionID == "" {
		return "", fmt.Errorf("mission runner returned no mission id")
	}

	return result.MissionID, nil
}

// SendMessage appends a follow-up instruction to a running mission
func (d *HTTPDispatcher) SendMessage(ctx context.Context, missionID, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal mission message: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/missions/%s/messages", d.baseURL, missionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mission message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mission runner returned status %d: %s", resp.StatusCode, string(payload))
	}

	return nil
}
