package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haloverify/verifysvc/internal/domain"
)

// VerifyDelegatedConfig configures a VerifyDelegatedAdapter.
type VerifyDelegatedConfig struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	BaseURL    string // override for tests
	SessionTTL time.Duration
}

// verifyDelegatedPayload is the opaque senderData this adapter persists: the
// provider's own verification SID, since the code itself never leaves the
// provider.
type verifyDelegatedPayload struct {
	VerificationSID string `json:"sid"`
}

// VerifyDelegatedAdapter delegates both code generation and code checking to
// an upstream verification API, the way Signal's TwilioVerifySender wraps
// Twilio Verify: this service never learns the code, only an opaque
// verification handle, and Check performs a second round trip to the
// provider rather than comparing bytes locally.
type VerifyDelegatedAdapter struct {
	cfg    VerifyDelegatedConfig
	client *http.Client
}

func NewVerifyDelegatedAdapter(cfg VerifyDelegatedConfig, httpClient *http.Client) *VerifyDelegatedAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://verify.twilio.com/v2"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VerifyDelegatedAdapter{cfg: cfg, client: httpClient}
}

func (a *VerifyDelegatedAdapter) Name() string { return "verify-delegated" }

func (a *VerifyDelegatedAdapter) SessionTTL() time.Duration { return a.cfg.SessionTTL }

func (a *VerifyDelegatedAdapter) Supports(transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) bool {
	return transport == domain.TransportSMS || transport == domain.TransportVoice
}

func (a *VerifyDelegatedAdapter) channel(transport domain.MessageTransport) string {
	if transport == domain.TransportVoice {
		return "call"
	}
	return "sms"
}

func (a *VerifyDelegatedAdapter) Send(ctx context.Context, transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) ([]byte, error) {
	form := url.Values{}
	form.Set("To", phone.String())
	form.Set("Channel", a.channel(transport))
	if len(languages) > 0 {
		form.Set("Locale", languages[0].Tag)
	}

	endpoint := fmt.Sprintf("%s/Services/%s/Verifications", a.cfg.BaseURL, a.cfg.ServiceSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyVerifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var decoded struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	payload, err := json.Marshal(verifyDelegatedPayload{VerificationSID: decoded.SID})
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrUnavailable, err)
	}
	return payload, nil
}

func (a *VerifyDelegatedAdapter) Check(ctx context.Context, submittedCode string, storedPayload []byte) (bool, error) {
	var payload verifyDelegatedPayload
	if err := json.Unmarshal(storedPayload, &payload); err != nil {
		return false, fmt.Errorf("%w: decode stored payload: %v", ErrUnavailable, err)
	}

	form := url.Values{}
	form.Set("VerificationSid", payload.VerificationSID)
	form.Set("Code", submittedCode)

	endpoint := fmt.Sprintf("%s/Services/%s/VerificationCheck", a.cfg.BaseURL, a.cfg.ServiceSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyVerifyStatus(resp.StatusCode); err != nil {
		return false, err
	}

	var decoded struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return decoded.Status == "approved", nil
}

func classifyVerifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: upstream status %d", ErrUnavailable, status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: upstream status %d", ErrIllegalArgument, status)
	case status >= 400:
		return fmt.Errorf("%w: upstream status %d", ErrRejected, status)
	}
	return nil
}
