package sender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haloverify/verifysvc/internal/domain"
)

func testPhone() domain.PhoneNumber {
	return domain.PhoneNumber{CountryCode: 1, SubscriberDigits: "5555550100"}
}

func TestMessagingSMSAdapterSendSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	a := NewMessagingSMSAdapter(MessagingSMSConfig{AccountSID: "AC1", AuthToken: "tok", MessagingID: "MG1", BaseURL: server.URL}, server.Client())
	payload, err := a.Send(context.Background(), domain.TransportSMS, testPhone(), nil, ClientUnknown)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(payload) != 6 {
		t.Fatalf("expected 6-digit payload, got %q", payload)
	}

	ok, err := a.Check(context.Background(), string(payload), payload)
	if err != nil || !ok {
		t.Fatalf("expected check to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestMessagingSMSAdapterRejectsVoice(t *testing.T) {
	a := NewMessagingSMSAdapter(MessagingSMSConfig{AccountSID: "AC1", AuthToken: "tok"}, nil)
	if a.Supports(domain.TransportVoice, testPhone(), nil, ClientUnknown) {
		t.Fatal("expected messaging-sms to not support voice")
	}
	_, err := a.Send(context.Background(), domain.TransportVoice, testPhone(), nil, ClientUnknown)
	if !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected illegal-argument error, got %v", err)
	}
}

func TestMessagingSMSAdapterMapsUpstreamStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrUnavailable},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusBadRequest, ErrIllegalArgument},
		{http.StatusForbidden, ErrRejected},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		a := NewMessagingSMSAdapter(MessagingSMSConfig{AccountSID: "AC1", AuthToken: "tok", BaseURL: server.URL}, server.Client())
		_, err := a.Send(context.Background(), domain.TransportSMS, testPhone(), nil, ClientUnknown)
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		server.Close()
	}
}
