// Package integration exercises verifysvc end to end: a real router wired
// to a real orchestrator and in-process session store, driven over HTTP the
// same way an external caller would drive it.
package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haloverify/verifysvc/internal/http/handler"
	"github.com/haloverify/verifysvc/internal/http/router"
	"github.com/haloverify/verifysvc/internal/orchestrator"
	"github.com/haloverify/verifysvc/internal/ratelimit"
	"github.com/haloverify/verifysvc/internal/selection"
	"github.com/haloverify/verifysvc/internal/sender"
	"github.com/haloverify/verifysvc/internal/store"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newVerifyTestServer wires a full stack (memory store, a synthetic
// last-digits sender, a generous local rate limiter) behind the real
// router and returns an httptest server to drive over HTTP.
func newVerifyTestServer(t *testing.T) (baseURL string, client *http.Client, closeFn func()) {
	t.Helper()
	memStore := store.NewMemoryStore(0)
	t.Cleanup(memStore.Close)

	lastDigits := sender.NewLastDigitsAdapter(4, time.Hour)
	registry, err := sender.NewRegistry(lastDigits)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	strategy := selection.NewStrategy(registry, selection.WithFallback("last-digits"))
	engine := ratelimit.NewEngine(ratelimit.NewLocalLimiter(), ratelimit.NewPolicy(1000, time.Minute, 1.0))
	o := orchestrator.New(memStore, engine, strategy, registry, orchestrator.NoopAttemptSink{}, orchestrator.Config{DefaultSessionTTL: time.Hour})

	mux := router.NewRouter(router.Dependencies{Verification: handler.NewVerificationHandler(o)})
	srv := httptest.NewServer(mux)
	return srv.URL, srv.Client(), srv.Close
}

// newVerifyTestServerWithTightCreationLimit wires the same stack as
// newVerifyTestServer but with a session-creation limiter tight enough
// (2 per minute) to trip inside a handful of test requests.
func newVerifyTestServerWithTightCreationLimit(t *testing.T) (baseURL string, client *http.Client, closeFn func()) {
	t.Helper()
	memStore := store.NewMemoryStore(0)
	t.Cleanup(memStore.Close)

	lastDigits := sender.NewLastDigitsAdapter(4, time.Hour)
	registry, err := sender.NewRegistry(lastDigits)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	strategy := selection.NewStrategy(registry, selection.WithFallback("last-digits"))
	engine := ratelimit.NewEngine(ratelimit.NewLocalLimiter(), ratelimit.NewPolicy(1000, time.Minute, 1.0))
	engine.SetPolicy(ratelimit.SessionCreation, ratelimit.NewPolicy(2, time.Minute, 1.0))
	o := orchestrator.New(memStore, engine, strategy, registry, orchestrator.NoopAttemptSink{}, orchestrator.Config{DefaultSessionTTL: time.Hour})

	mux := router.NewRouter(router.Dependencies{Verification: handler.NewVerificationHandler(o)})
	srv := httptest.NewServer(mux)
	return srv.URL, srv.Client(), srv.Close
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, testEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env testEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func createTestSession(t *testing.T, client *http.Client, baseURL string, e164 uint64) string {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/sessions", map[string]any{"e164": e164})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("create session failed: status=%d success=%v", resp.StatusCode, env.Success)
	}
	var data struct {
		SessionMetadata struct {
			SessionID string `json:"sessionId"`
		} `json:"sessionMetadata"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode session metadata: %v", err)
	}
	if data.SessionMetadata.SessionID == "" {
		t.Fatalf("expected a session id, got %s", env.Data)
	}
	return data.SessionMetadata.SessionID
}
