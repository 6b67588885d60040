package sender

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/haloverify/verifysvc/internal/domain"
)

// MessagingSMSConfig configures a MessagingSMSAdapter.
type MessagingSMSConfig struct {
	AccountSID  string
	AuthToken   string
	MessagingID string // messaging service SID the message is sent from
	BaseURL     string // override for tests; defaults to the provider's API root
	SessionTTL  time.Duration
	CodeDigits  int
}

// MessagingSMSAdapter sends a locally generated verification code embedded
// in a plain SMS body, the way Twilio's classic Messaging Service API is
// used for SMS in the Signal registration service: this service owns the
// code, so checking is a byte-for-byte comparison against the persisted
// payload rather than a round trip to the provider.
type MessagingSMSAdapter struct {
	cfg    MessagingSMSConfig
	client *http.Client
}

// NewMessagingSMSAdapter builds an adapter that posts to cfg.BaseURL (or the
// provider's production API root when unset) using httpClient, or
// http.DefaultClient when httpClient is nil.
func NewMessagingSMSAdapter(cfg MessagingSMSConfig, httpClient *http.Client) *MessagingSMSAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com/2010-04-01"
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
	return &MessagingSMSAdapter{cfg: cfg, client: httpClient}
}

func (a *MessagingSMSAdapter) Name() string { return "messaging-sms" }

func (a *MessagingSMSAdapter) SessionTTL() time.Duration { return a.cfg.SessionTTL }

func (a *MessagingSMSAdapter) Supports(transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) bool {
	return transport == domain.TransportSMS
}

func (a *MessagingSMSAdapter) Send(ctx context.Context, transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) ([]byte, error) {
	if transport != domain.TransportSMS {
		return nil, fmt.Errorf("%w: messaging-sms does not support %s", ErrIllegalArgument, transport)
	}

	code, err := GenerateNumericCode(a.cfg.CodeDigits)
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf("Your verification code is: %s", code)

	form := url.Values{}
	form.Set("To", phone.String())
	form.Set("MessagingServiceSid", a.cfg.MessagingID)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", a.cfg.BaseURL, a.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
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

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: upstream status %d", ErrIllegalArgument, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: upstream status %d", ErrRejected, resp.StatusCode)
	}

	return []byte(code), nil
}

func (a *MessagingSMSAdapter) Check(ctx context.Context, submittedCode string, storedPayload []byte) (bool, error) {
	return submittedCode == string(storedPayload), nil
}
