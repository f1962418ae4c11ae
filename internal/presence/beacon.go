package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/campus-portal-api/internal/service"
)

// Beacon delivers heartbeats for one session to the presence store.
type Beacon interface {
	Heartbeat(ctx context.Context, sessionID, page string) error
	Leave(ctx context.Context, sessionID string) error
}

// HTTPBeacon talks to the portal API.
type HTTPBeacon struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPBeacon targets baseURL, e.g. "http://localhost:8080/api/v1".
func NewHTTPBeacon(baseURL, userAgent string, client *http.Client) *HTTPBeacon {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPBeacon{baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent, client: client}
}

// Heartbeat posts one heartbeat.
func (b *HTTPBeacon) Heartbeat(ctx context.Context, sessionID, page string) error {
	body, err := json.Marshal(service.HeartbeatRequest{SessionID: sessionID, PageName: page, UserAgent: b.userAgent})
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/presence/heartbeat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

// Leave deletes the session row.
func (b *HTTPBeacon) Leave(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+"/presence/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	return b.do(req)
}

func (b *HTTPBeacon) do(req *http.Request) error {
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return nil
}

// ServiceBeacon calls the presence service directly, for in-process tracking.
type ServiceBeacon struct {
	svc       *service.PresenceService
	userAgent string
}

// NewServiceBeacon wraps svc.
func NewServiceBeacon(svc *service.PresenceService, userAgent string) *ServiceBeacon {
	return &ServiceBeacon{svc: svc, userAgent: userAgent}
}

// Heartbeat upserts through the service.
func (b *ServiceBeacon) Heartbeat(ctx context.Context, sessionID, page string) error {
	return b.svc.Heartbeat(ctx, service.HeartbeatRequest{SessionID: sessionID, PageName: page, UserAgent: b.userAgent})
}

// Leave deletes through the service.
func (b *ServiceBeacon) Leave(ctx context.Context, sessionID string) error {
	b.svc.Leave(ctx, sessionID)
	return nil
}
