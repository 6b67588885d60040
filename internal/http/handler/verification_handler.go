// Package handler renders the Verification Orchestrator's four operations
// as unary JSON-over-HTTP remote procedures (SPEC_FULL.md §6). The choice
// of JSON-over-HTTP rather than a binary RPC framing is explicit in the
// spec ("the choice of transport/framing is an implementation detail; any
// unary RPC framing satisfying these request/response shapes conforms").
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haloverify/verifysvc/internal/domain"
	"github.com/haloverify/verifysvc/internal/http/response"
	"github.com/haloverify/verifysvc/internal/observability"
	"github.com/haloverify/verifysvc/internal/orchestrator"
	"github.com/haloverify/verifysvc/internal/sender"
)

// VerificationHandler renders Orchestrator operations over HTTP.
type VerificationHandler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewVerificationHandler(o *orchestrator.Orchestrator) *VerificationHandler {
	return &VerificationHandler{orchestrator: o}
}

type sessionMetadataWire struct {
	SessionID string `json:"sessionId"`
	E164      uint64 `json:"e164"`
	Verified  bool   `json:"verified"`
}

func toWireMetadata(m domain.Metadata) sessionMetadataWire {
	return sessionMetadataWire{SessionID: m.SessionID.String(), E164: m.E164, Verified: m.Verified}
}

type publicErrorWire struct {
	Kind              string `json:"kind"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
	MayRetry          bool   `json:"mayRetry"`
}

func toWireError(e *domain.PublicError) *publicErrorWire {
	if e == nil {
		return nil
	}
	return &publicErrorWire{Kind: string(e.Kind), RetryAfterSeconds: e.RetryAfterSeconds, MayRetry: e.MayRetry()}
}

// CreateSession handles POST /api/v1/sessions.
func (h *VerificationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		E164      uint64 `json:"e164"`
		SourceTag string `json:"sourceTag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body", nil)
		return
	}
	if req.SourceTag == "" {
		req.SourceTag = "default"
	}

	result, err := h.orchestrator.CreateSession(r.Context(), req.E164, req.SourceTag)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	if result.PublicErr != nil {
		observability.Audit(r, "createSession", "outcome", string(result.PublicErr.Kind))
		response.JSON(w, r, http.StatusOK, map[string]any{"error": toWireError(result.PublicErr)})
		return
	}
	observability.Audit(r, "createSession", "outcome", "ok", "sessionId", result.Metadata.SessionID.String())
	response.JSON(w, r, http.StatusOK, map[string]any{"sessionMetadata": toWireMetadata(result.Metadata)})
}

// GetSessionMetadata handles GET /api/v1/sessions/{sessionId}.
func (h *VerificationHandler) GetSessionMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed session id", nil)
		return
	}

	metadata, publicErr, err := h.orchestrator.GetSession(r.Context(), id)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	if publicErr != nil {
		response.JSON(w, r, http.StatusOK, map[string]any{"error": toWireError(publicErr)})
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessionMetadata": toWireMetadata(metadata)})
}

// SendVerificationCode handles POST /api/v1/sessions/{sessionId}/send.
func (h *VerificationHandler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed session id", nil)
		return
	}

	var req struct {
		Transport      string `json:"transport"`
		AcceptLanguage string `json:"acceptLanguage"`
		ClientType     string `json:"clientType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body", nil)
		return
	}

	transport := domain.MessageTransport(req.Transport)
	if transport != domain.TransportSMS && transport != domain.TransportVoice {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "transport must be SMS or VOICE", nil)
		return
	}

	var languages []sender.LanguageRange
	if req.AcceptLanguage != "" {
		languages = []sender.LanguageRange{{Tag: req.AcceptLanguage, Weight: 1.0}}
	}

	result, err := h.orchestrator.SendCode(r.Context(), id, transport, languages, sender.ClientType(req.ClientType))
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidArgument) {
			response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown or expired session", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}

	body := map[string]any{"sessionId": id.String()}
	outcome := "ok"
	if result.PublicErr != nil {
		outcome = string(result.PublicErr.Kind)
		body["error"] = toWireError(result.PublicErr)
	}
	if result.Metadata.SessionID != uuid.Nil {
		body["sessionMetadata"] = toWireMetadata(result.Metadata)
	}
	observability.Audit(r, "sendVerificationCode", "outcome", outcome, "sessionId", id.String())
	response.JSON(w, r, http.StatusOK, body)
}

// CheckVerificationCode handles POST /api/v1/sessions/{sessionId}/check.
func (h *VerificationHandler) CheckVerificationCode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed session id", nil)
		return
	}

	var req struct {
		VerificationCode string `json:"verificationCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VerificationCode == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "verificationCode is required", nil)
		return
	}

	result, err := h.orchestrator.CheckCode(r.Context(), id, req.VerificationCode)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}

	body := map[string]any{"verified": result.Verified}
	if result.PublicErr != nil {
		body["error"] = toWireError(result.PublicErr)
	}
	if result.Metadata.SessionID != uuid.Nil {
		body["sessionMetadata"] = toWireMetadata(result.Metadata)
	}
	observability.Audit(r, "checkVerificationCode", "outcome", fmt.Sprintf("verified=%t", result.Verified), "sessionId", id.String())
	response.JSON(w, r, http.StatusOK, body)
}
