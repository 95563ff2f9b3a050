// Upstream relay client. The poll loop only knows the Fetcher contract; this
// file binds it to the relay's JSON API (POST /api/login, GET /api/messages).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

// upstreamClient talks to the SMS relay endpoint that exposes received
// messages as JSON.
type upstreamClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newUpstreamClient(baseURL, apiKey string) *upstreamClient {
	return &upstreamClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type loginResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Login establishes (or refreshes) the relay session. A rejected login is
// reported through the ok/message pair, not as a transport error.
func (c *upstreamClient) Login(ctx context.Context) (bool, string, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/api/login")
	if err != nil {
		return false, "", err
	}
	if status != http.StatusOK {
		return false, "", fmt.Errorf("upstream login status %d body=%q", status, string(body))
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return false, "", fmt.Errorf("decode login response: %w body=%q", err, string(body))
	}
	return lr.OK, lr.Message, nil
}

type messagesResponse struct {
	Messages []domain.SMSCandidate `json:"messages"`
}

// FetchMessages returns the relay's current batch of received messages.
func (c *upstreamClient) FetchMessages(ctx context.Context) ([]domain.SMSCandidate, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/api/messages")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("upstream messages status %d body=%q", status, string(body))
	}

	var mr messagesResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("decode messages response: %w body=%q", err, string(body))
	}
	return mr.Messages, nil
}

// do issues one request against the relay and returns the raw body and
// status.
func (c *upstreamClient) do(ctx context.Context, method, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
