package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type sessionMetadata struct {
	SessionID string `json:"sessionId"`
	E164      uint64 `json:"e164"`
	Verified  bool   `json:"verified"`
}

type publicError struct {
	Kind              string `json:"kind"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
	MayRetry          bool   `json:"mayRetry"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		SessionMetadata *sessionMetadata `json:"sessionMetadata,omitempty"`
		Verified        *bool            `json:"verified,omitempty"`
		Error           *publicError     `json:"error,omitempty"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// apiClient is a thin HTTP client over verifysvcd's four session RPCs, used
// by both the one-shot subcommands and the watch TUI.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = *bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success && env.Error != nil {
		return &env, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	return &env, nil
}

func (c *apiClient) createSession(ctx context.Context, e164 uint64, sourceTag string) (*envelope, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions", map[string]any{"e164": e164, "sourceTag": sourceTag})
}

func (c *apiClient) sendCode(ctx context.Context, sessionID, transport string) (*envelope, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/send", map[string]any{"transport": transport})
}

func (c *apiClient) checkCode(ctx context.Context, sessionID, code string) (*envelope, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/check", map[string]any{"verificationCode": code})
}

func (c *apiClient) getSession(ctx context.Context, sessionID string) (*envelope, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
}
