package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultGA4Endpoint = "https://www.google-analytics.com/mp/collect"

type GA4Config struct {
	MeasurementID string `yaml:"measurement_id"`
	APISecret     string `yaml:"api_secret"`
	// Endpoint overrides the Measurement Protocol URL, e.g. the
	// /debug/mp/collect validation endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// GA4 sends events through the Google Analytics 4 Measurement Protocol.
type GA4 struct {
	cfg    GA4Config
	client *http.Client
}

func NewGA4(cfg GA4Config) *GA4 {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultGA4Endpoint
	}
	return &GA4{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (g *GA4) Name() string { return "ga4" }

type ga4Event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type ga4Payload struct {
	ClientID        string     `json:"client_id"`
	UserID          string     `json:"user_id,omitempty"`
	TimestampMicros int64      `json:"timestamp_micros,omitempty"`
	Events          []ga4Event `json:"events"`
}

func (g *GA4) Send(ctx context.Context, e Event) error {
	payload := ga4Payload{
		ClientID: e.ClientID,
		UserID:   e.UserID,
		Events:   []ga4Event{{Name: e.Name, Params: e.Params}},
	}
	if !e.Timestamp.IsZero() {
		payload.TimestampMicros = e.Timestamp.UnixMicro()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ga4 payload: %w", err)
	}

	q := url.Values{}
	q.Set("measurement_id", g.cfg.MeasurementID)
	q.Set("api_secret", g.cfg.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(g.client, req)
}

func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector returned status %d: %s", resp.StatusCode, string(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
