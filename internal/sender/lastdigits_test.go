package sender

import (
	"context"
	"testing"

	"github.com/haloverify/verifysvc/internal/domain"
)

func TestLastDigitsAdapterSendThenCheck(t *testing.T) {
	a := NewLastDigitsAdapter(4, 0)
	phone := domain.PhoneNumber{CountryCode: 1, SubscriberDigits: "5555550100"}
	ctx := context.Background()

	payload, err := a.Send(ctx, domain.TransportSMS, phone, nil, ClientUnknown)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(payload) != "0100" {
		t.Fatalf("expected payload 0100, got %q", payload)
	}

	ok, err := a.Check(ctx, "0100", payload)
	if err != nil || !ok {
		t.Fatalf("expected matching check to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = a.Check(ctx, "9999", payload)
	if err != nil || ok {
		t.Fatalf("expected mismatched check to fail, got ok=%v err=%v", ok, err)
	}
}

func TestLastDigitsAdapterSupportsEverything(t *testing.T) {
	a := NewLastDigitsAdapter(4, 0)
	phone := domain.PhoneNumber{CountryCode: 1, SubscriberDigits: "5555550100"}
	if !a.Supports(domain.TransportSMS, phone, nil, ClientUnknown) {
		t.Fatal("expected SMS support")
	}
	if !a.Supports(domain.TransportVoice, phone, nil, ClientIOS) {
		t.Fatal("expected voice support")
	}
}
