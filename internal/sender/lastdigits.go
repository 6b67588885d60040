package sender

import (
	"context"
	"time"

	"github.com/haloverify/verifysvc/internal/domain"
)

// LastDigitsAdapter is a synthetic provided-code adapter that "delivers" a
// code by doing nothing at all: the code to check against is always the
// last N digits of the destination's own phone number. It exists for local
// development and integration tests where no upstream provider credentials
// are available, mirroring Signal's NoopSmsSender/dev-environment senders.
type LastDigitsAdapter struct {
	digits int
	ttl    time.Duration
}

// NewLastDigitsAdapter returns an adapter checking the last digits digits of
// the phone number's national subscriber number.
func NewLastDigitsAdapter(digits int, ttl time.Duration) *LastDigitsAdapter {
	if digits <= 0 {
		digits = 4
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LastDigitsAdapter{digits: digits, ttl: ttl}
}

func (a *LastDigitsAdapter) Name() string { return "last-digits" }

func (a *LastDigitsAdapter) SessionTTL() time.Duration { return a.ttl }

func (a *LastDigitsAdapter) Supports(transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) bool {
	return true
}

func (a *LastDigitsAdapter) Send(ctx context.Context, transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) ([]byte, error) {
	return []byte(phone.LastDigits(a.digits)), nil
}

func (a *LastDigitsAdapter) Check(ctx context.Context, submittedCode string, storedPayload []byte) (bool, error) {
	return submittedCode == string(storedPayload), nil
}
