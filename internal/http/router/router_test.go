package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haloverify/verifysvc/internal/http/handler"
	appmiddleware "github.com/haloverify/verifysvc/internal/http/middleware"
	"github.com/haloverify/verifysvc/internal/orchestrator"
	"github.com/haloverify/verifysvc/internal/ratelimit"
	"github.com/haloverify/verifysvc/internal/selection"
	"github.com/haloverify/verifysvc/internal/sender"
	"github.com/haloverify/verifysvc/internal/store"
)

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()
	memStore := store.NewMemoryStore(0)
	t.Cleanup(func() { memStore.Close() })
	registry, _ := sender.NewRegistry(sender.NewLastDigitsAdapter(4, time.Hour))
	strategy := selection.NewStrategy(registry, selection.WithFallback("last-digits"))
	engine := ratelimit.NewEngine(ratelimit.NewLocalLimiter(), ratelimit.NewPolicy(1000, time.Minute, 1.0))
	o := orchestrator.New(memStore, engine, strategy, registry, orchestrator.NoopAttemptSink{}, orchestrator.Config{DefaultSessionTTL: time.Hour})
	return Dependencies{Verification: handler.NewVerificationHandler(o)}
}

func perform(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthLive(t *testing.T) {
	r := NewRouter(newTestDeps(t))
	rr := perform(r, http.MethodGet, "/health/live", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestRouterHealthReadyNoCheckersIsReady(t *testing.T) {
	r := NewRouter(newTestDeps(t))
	rr := perform(r, http.MethodGet, "/health/ready", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterHealthReadyUnhealthyDependency(t *testing.T) {
	dep := newTestDeps(t)
	dep.Readiness = map[string]ReadinessChecker{
		"store": func(r *http.Request) error { return errUnreachable },
	}
	r := NewRouter(dep)
	rr := perform(r, http.MethodGet, "/health/ready", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"DEPENDENCY_UNREADY"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestRouterCreateSessionRoute(t *testing.T) {
	r := NewRouter(newTestDeps(t))
	rr := perform(r, http.MethodPost, "/api/v1/sessions", `{"e164":15555550100}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"sessionMetadata"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestRouterAPIRateLimiterApplies(t *testing.T) {
	dep := newTestDeps(t)
	dep.APIRateLimiter = appmiddleware.NewRateLimiter(ratelimit.NewLocalLimiter(), ratelimit.NewPolicy(1, time.Minute, 1.0), appmiddleware.FailClosed, "api")
	r := NewRouter(dep)

	first := perform(r, http.MethodGet, "/health/live", "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}
	second := perform(r, http.MethodGet, "/health/live", "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request throttled, got %d", second.Code)
	}
}

var errUnreachable = &staticError{"backend unreachable"}

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }
