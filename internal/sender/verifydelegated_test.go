package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haloverify/verifysvc/internal/domain"
)

func TestVerifyDelegatedAdapterSendThenCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Services/VA1/Verifications", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sid": "VE123"})
	})
	mux.HandleFunc("/Services/VA1/VerificationCheck", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		status := "pending"
		if r.FormValue("Code") == "123456" {
			status = "approved"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a := NewVerifyDelegatedAdapter(VerifyDelegatedConfig{AccountSID: "AC1", AuthToken: "tok", ServiceSID: "VA1", BaseURL: server.URL}, server.Client())

	payload, err := a.Send(context.Background(), domain.TransportSMS, testPhone(), nil, ClientUnknown)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	ok, err := a.Check(context.Background(), "000000", payload)
	if err != nil || ok {
		t.Fatalf("expected wrong code to fail, got ok=%v err=%v", ok, err)
	}

	ok, err = a.Check(context.Background(), "123456", payload)
	if err != nil || !ok {
		t.Fatalf("expected right code to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyDelegatedAdapterSupportsSMSAndVoice(t *testing.T) {
	a := NewVerifyDelegatedAdapter(VerifyDelegatedConfig{AccountSID: "AC1", AuthToken: "tok", ServiceSID: "VA1"}, nil)
	if !a.Supports(domain.TransportSMS, testPhone(), nil, ClientUnknown) {
		t.Fatal("expected SMS support")
	}
	if !a.Supports(domain.TransportVoice, testPhone(), nil, ClientUnknown) {
		t.Fatal("expected voice support")
	}
}
