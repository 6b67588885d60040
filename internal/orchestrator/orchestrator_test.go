package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haloverify/verifysvc/internal/domain"
	"github.com/haloverify/verifysvc/internal/ratelimit"
	"github.com/haloverify/verifysvc/internal/selection"
	"github.com/haloverify/verifysvc/internal/sender"
	"github.com/haloverify/verifysvc/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	memStore := store.NewMemoryStore(0)
	t.Cleanup(func() { memStore.Close() })

	lastDigits := sender.NewLastDigitsAdapter(4, time.Hour)
	registry, err := sender.NewRegistry(lastDigits)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	strategy := selection.NewStrategy(registry, selection.WithFallback("last-digits"))
	engine := ratelimit.NewEngine(ratelimit.NewLocalLimiter(), ratelimit.NewPolicy(1000, time.Minute, 1.0))

	return New(memStore, engine, strategy, registry, NoopAttemptSink{}, Config{DefaultSessionTTL: time.Hour})
}

const testE164 = uint64(15555550100)

func TestCreateSessionHappyPath(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateSession(ctx, testE164, "ios")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.PublicErr != nil {
		t.Fatalf("unexpected public error: %v", result.PublicErr)
	}
	if result.SessionID == uuid.Nil {
		t.Fatal("expected a non-nil session id")
	}
	if result.Metadata.Verified {
		t.Fatal("expected new session to be unverified")
	}
}

func TestCreateSessionRejectsIllegalPhoneNumber(t *testing.T) {
	o := newTestOrchestrator(t)
	result, err := o.CreateSession(context.Background(), 0, "ios")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.PublicErr == nil || result.PublicErr.Kind != domain.ErrorIllegalPhoneNumber {
		t.Fatalf("expected ILLEGAL_PHONE_NUMBER, got %+v", result.PublicErr)
	}
}

func TestFullVerificationFlow(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	created, err := o.CreateSession(ctx, testE164, "ios")
	if err != nil || created.PublicErr != nil {
		t.Fatalf("create: err=%v publicErr=%+v", err, created.PublicErr)
	}

	sendResult, err := o.SendCode(ctx, created.SessionID, domain.TransportSMS, nil, sender.ClientUnknown)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sendResult.PublicErr != nil {
		t.Fatalf("unexpected send error: %v", sendResult.PublicErr)
	}

	checkResult, err := o.CheckCode(ctx, created.SessionID, "0100")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if checkResult.PublicErr != nil {
		t.Fatalf("unexpected check error: %v", checkResult.PublicErr)
	}
	if !checkResult.Verified {
		t.Fatal("expected correct code to verify the session")
	}

	second, err := o.SendCode(ctx, created.SessionID, domain.TransportSMS, nil, sender.ClientUnknown)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if second.PublicErr == nil || second.PublicErr.Kind != domain.ErrorSessionAlreadyVerified {
		t.Fatalf("expected SESSION_ALREADY_VERIFIED, got %+v", second.PublicErr)
	}
}

func TestCheckCodeBeforeSendReturnsNoCodeSent(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	created, _ := o.CreateSession(ctx, testE164, "ios")
	result, err := o.CheckCode(ctx, created.SessionID, "0000")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.PublicErr == nil || result.PublicErr.Kind != domain.ErrorNoCodeSent {
		t.Fatalf("expected NO_CODE_SENT, got %+v", result.PublicErr)
	}
}

func TestCheckCodeWrongCodeDoesNotVerify(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	created, _ := o.CreateSession(ctx, testE164, "ios")
	if _, err := o.SendCode(ctx, created.SessionID, domain.TransportSMS, nil, sender.ClientUnknown); err != nil {
		t.Fatalf("send: %v", err)
	}

	result, err := o.CheckCode(ctx, created.SessionID, "9999")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Verified {
		t.Fatal("expected wrong code not to verify")
	}
	if result.PublicErr != nil {
		t.Fatalf("wrong code should not be a public error, got %+v", result.PublicErr)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	o := newTestOrchestrator(t)
	_, publicErr, err := o.GetSession(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if publicErr == nil || publicErr.Kind != domain.ErrorNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", publicErr)
	}
}

func TestSendCodeUnknownSessionIsInvalidArgument(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.SendCode(context.Background(), uuid.New(), domain.TransportSMS, nil, sender.ClientUnknown)
	if err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	memStore := store.NewMemoryStore(0)
	t.Cleanup(func() { memStore.Close() })
	lastDigits := sender.NewLastDigitsAdapter(4, time.Hour)
	registry, _ := sender.NewRegistry(lastDigits)
	strategy := selection.NewStrategy(registry, selection.WithFallback("last-digits"))
	engine := ratelimit.NewEngine(ratelimit.NewLocalLimiter(), ratelimit.NewPolicy(1, time.Minute, 1.0))
	o := New(memStore, engine, strategy, registry, NoopAttemptSink{}, Config{DefaultSessionTTL: time.Hour})

	ctx := context.Background()
	if _, err := o.CreateSession(ctx, testE164, "ios"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	result, err := o.CreateSession(ctx, testE164, "ios")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if result.PublicErr == nil || result.PublicErr.Kind != domain.ErrorRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %+v", result.PublicErr)
	}
	if result.PublicErr.RetryAfterSeconds <= 0 {
		t.Fatal("expected positive retry-after")
	}
}
