package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haloverify/verifysvc/internal/domain"
)

func testPhone() domain.PhoneNumber {
	return domain.PhoneNumber{CountryCode: 1, SubscriberDigits: "5555550100"}
}

func TestEngineCheckSessionCreationDenies(t *testing.T) {
	e := NewEngine(NewLocalLimiter(), NewPolicy(1, time.Minute, 1.0))
	ctx := context.Background()

	if deny, err := e.CheckSessionCreation(ctx, testPhone(), "ios"); err != nil || deny != nil {
		t.Fatalf("expected first call allowed, got deny=%+v err=%v", deny, err)
	}
	deny, err := e.CheckSessionCreation(ctx, testPhone(), "ios")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if deny == nil || deny.Name != SessionCreation {
		t.Fatalf("expected session-creation denial, got %+v", deny)
	}
	if deny.RetryAfter <= 0 {
		t.Fatal("expected positive retry-after")
	}
}

func TestEngineCompositeKeysDoNotCollideAcrossSourceTags(t *testing.T) {
	e := NewEngine(NewLocalLimiter(), NewPolicy(1, time.Minute, 1.0))
	ctx := context.Background()

	if deny, _ := e.CheckSessionCreation(ctx, testPhone(), "ios"); deny != nil {
		t.Fatalf("expected ios tag to be allowed, got %+v", deny)
	}
	if deny, _ := e.CheckSessionCreation(ctx, testPhone(), "android"); deny != nil {
		t.Fatalf("expected android tag to be allowed independently of ios, got %+v", deny)
	}
}

func TestEngineCheckSendConsultsNumberBeforeSession(t *testing.T) {
	e := NewEngine(NewLocalLimiter(), NewPolicy(0, time.Minute, 1.0)) // 0 normalizes to 1
	ctx := context.Background()
	sessionID := uuid.New()

	if deny, _ := e.CheckSend(ctx, domain.TransportSMS, testPhone(), sessionID); deny != nil {
		t.Fatalf("expected first send allowed, got %+v", deny)
	}
	deny, err := e.CheckSend(ctx, domain.TransportSMS, testPhone(), sessionID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if deny == nil || deny.Name != SendSMSPerNumber {
		t.Fatalf("expected number-scoped denial to surface first, got %+v", deny)
	}
}

func TestEngineCheckSendVoiceIsIndependentOfSMS(t *testing.T) {
	e := NewEngine(NewLocalLimiter(), NewPolicy(1, time.Minute, 1.0))
	ctx := context.Background()
	sessionID := uuid.New()

	if deny, _ := e.CheckSend(ctx, domain.TransportSMS, testPhone(), sessionID); deny != nil {
		t.Fatalf("expected sms send allowed, got %+v", deny)
	}
	if deny, _ := e.CheckSend(ctx, domain.TransportVoice, testPhone(), sessionID); deny != nil {
		t.Fatalf("expected voice send allowed independent of sms budget, got %+v", deny)
	}
}
