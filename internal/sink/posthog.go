package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultPostHogHost = "https://us.i.posthog.com"

type PostHogConfig struct {
	APIKey string `yaml:"api_key"`
	Host   string `yaml:"host,omitempty"`
}

// PostHog sends events to the PostHog capture endpoint.
type PostHog struct {
	cfg    PostHogConfig
	client *http.Client
}

func NewPostHog(cfg PostHogConfig) *PostHog {
	if cfg.Host == "" {
		cfg.Host = defaultPostHogHost
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")
	return &PostHog{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *PostHog) Name() string { return "posthog" }

type posthogPayload struct {
	APIKey     string         `json:"api_key"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

func (p *PostHog) Send(ctx context.Context, e Event) error {
	distinct := e.UserID
	if distinct == "" {
		distinct = e.ClientID
	}

	props := make(map[string]any, len(e.Params)+1)
	for k, v := range e.Params {
		props[k] = v
	}
	if e.UserID != "" && e.ClientID != "" {
		props["$session_id"] = e.ClientID
	}

	payload := posthogPayload{
		APIKey:     p.cfg.APIKey,
		Event:      e.Name,
		DistinctID: distinct,
		Properties: props,
	}
	if !e.Timestamp.IsZero() {
		payload.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal posthog payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/capture/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(p.client, req)
}
