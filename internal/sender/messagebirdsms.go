package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haloverify/verifysvc/internal/domain"
)

// MessageBirdSMSConfig configures a MessageBirdSMSAdapter.
type MessageBirdSMSConfig struct {
	AccessKey  string
	Originator string
	BaseURL    string // override for tests
	SessionTTL time.Duration
	CodeDigits int
}

type messageBirdSendRequest struct {
	Originator string `json:"originator"`
	Recipients string `json:"recipients"`
	Body       string `json:"body"`
}

type messageBirdSendResponse struct {
	Recipients struct {
		TotalDeliveryFailedCount int `json:"totalDeliveryFailedCount"`
	} `json:"recipients"`
}

// MessageBirdSMSAdapter is a second provided-code SMS adapter, grounded on
// Signal's MessageBirdSmsSender: like MessagingSMSAdapter it generates the
// code itself and embeds it in the message body, but it is a distinct
// upstream with its own auth scheme and response shape, exercising the
// registry's multi-adapter-per-transport case.
type MessageBirdSMSAdapter struct {
	cfg    MessageBirdSMSConfig
	client *http.Client
}

func NewMessageBirdSMSAdapter(cfg MessageBirdSMSConfig, httpClient *http.Client) *MessageBirdSMSAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rest.messagebird.com"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if cfg.CodeDigits <= 0 {
		cfg.CodeDigits = 6
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MessageBirdSMSAdapter{cfg: cfg, client: httpClient}
}

func (a *MessageBirdSMSAdapter) Name() string { return "messagebird-sms" }

func (a *MessageBirdSMSAdapter) SessionTTL() time.Duration { return a.cfg.SessionTTL }

func (a *MessageBirdSMSAdapter) Supports(transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) bool {
	return transport == domain.TransportSMS
}

func (a *MessageBirdSMSAdapter) Send(ctx context.Context, transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) ([]byte, error) {
	if transport != domain.TransportSMS {
		return nil, fmt.Errorf("%w: messagebird-sms does not support %s", ErrIllegalArgument, transport)
	}

	code, err := GenerateNumericCode(a.cfg.CodeDigits)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(messageBirdSendRequest{
		Originator: a.cfg.Originator,
		Recipients: phone.String(),
		Body:       fmt.Sprintf("Your verification code is %s", code),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "AccessKey "+a.cfg.AccessKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: upstream status %d", ErrIllegalArgument, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: upstream status %d", ErrRejected, resp.StatusCode)
	}

	var decoded messageBirdSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if decoded.Recipients.TotalDeliveryFailedCount != 0 {
		return nil, fmt.Errorf("%w: delivery failed for all recipients", ErrUnavailable)
	}

	return []byte(code), nil
}

func (a *MessageBirdSMSAdapter) Check(ctx context.Context, submittedCode string, storedPayload []byte) (bool, error) {
	return submittedCode == string(storedPayload), nil
}
