// Package router assembles the chi mux for the verification service's wire
// surface: the four session RPCs plus liveness/readiness probes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/haloverify/verifysvc/internal/http/handler"
	"github.com/haloverify/verifysvc/internal/http/response"
	appmiddleware "github.com/haloverify/verifysvc/internal/http/middleware"
)

// ReadinessChecker reports whether a backend dependency (store, rate
// limiter) is currently reachable. A nil error means healthy.
type ReadinessChecker func(r *http.Request) error

// Dependencies wires everything NewRouter needs to build the mux. Fields
// left at their zero value fall back to a permissive default so tests can
// build a minimal router.
type Dependencies struct {
	Verification   *handler.VerificationHandler
	APIRateLimiter *appmiddleware.RateLimiter
	Readiness      map[string]ReadinessChecker
	EnableOTelHTTP bool
	BodyLimitBytes int64
}

func NewRouter(dep Dependencies) http.Handler {
	if dep.BodyLimitBytes <= 0 {
		dep.BodyLimitBytes = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.StructuredRequestLogger)
	r.Use(appmiddleware.SecurityHeaders)
	r.Use(appmiddleware.BodyLimit(dep.BodyLimitBytes))
	if dep.APIRateLimiter != nil {
		r.Use(dep.APIRateLimiter.Middleware())
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(dep.Readiness))
		ready := true
		for name, check := range dep.Readiness {
			if err := check(r); err != nil {
				ready = false
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": checks})
	})

	if dep.Verification != nil {
		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Post("/", dep.Verification.CreateSession)
			r.Get("/{sessionId}", dep.Verification.GetSessionMetadata)
			r.Post("/{sessionId}/send", dep.Verification.SendVerificationCode)
			r.Post("/{sessionId}/check", dep.Verification.CheckVerificationCode)
		})
	}

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
