package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the drift detection backend. Every call is best-effort
// telemetry: callers log failures and move on, nothing is retried.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// DriftAnalysis is the backend's classification of the current session.
// Each poll replaces the previous value wholesale.
type DriftAnalysis struct {
	IsDrifting     bool            `json:"is_drifting"`
	Confidence     float64         `json:"confidence"`
	DriftScore     float64         `json:"drift_score"`
	Factors        map[string]bool `json:"factors"`
	Recommendation string          `json:"recommendation"`
}

// SessionStats is the server-side aggregate for a finished or running session.
type SessionStats struct {
	SessionID      string  `json:"session_id"`
	ActiveTime     float64 `json:"active_time"`
	ScrollCount    int     `json:"scroll_count"`
	ClickCount     int     `json:"click_count"`
	MouseMovements int     `json:"mouse_movements"`
	IdleTime       float64 `json:"idle_time"`
	TabSwitches    int     `json:"tab_switches"`
	DriftDetected  bool    `json:"drift_detected"`
	DriftScore     float64 `json:"drift_score"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

type eventRequest struct {
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// StartSession asks the backend for a new session id.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/session/start", struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("start session: backend returned empty session id")
	}
	return resp.ID, nil
}

// ReportEvent forwards one tracking event. The response body carries nothing
// the tracker needs, so it is discarded.
func (c *Client) ReportEvent(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	body := eventRequest{SessionID: sessionID, EventType: string(eventType), Data: data}
	if err := c.do(ctx, http.MethodPost, "/api/tracking/event", body, nil); err != nil {
		return fmt.Errorf("report %s event: %w", eventType, err)
	}
	return nil
}

// Analysis fetches the current drift classification for a session.
func (c *Client) Analysis(ctx context.Context, sessionID string) (DriftAnalysis, error) {
	var out DriftAnalysis
	if err := c.do(ctx, http.MethodGet, "/api/tracking/analysis/"+sessionID, nil, &out); err != nil {
		return DriftAnalysis{}, fmt.Errorf("drift analysis: %w", err)
	}
	return out, nil
}

// Stats fetches server-side aggregates for a session.
func (c *Client) Stats(ctx context.Context, sessionID string) (SessionStats, error) {
	var out SessionStats
	if err := c.do(ctx, http.MethodGet, "/api/session/"+sessionID+"/stats", nil, &out); err != nil {
		return SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	return out, nil
}

// EndSession tears the session down server-side. Best effort; the caller
// clears local state no matter what this returns.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/session/"+sessionID, nil, nil); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(raw))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return fmt.Errorf("backend status %d: %s", resp.StatusCode, detail)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
