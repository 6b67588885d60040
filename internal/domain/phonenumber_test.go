package domain

import (
	"errors"
	"testing"
)

func TestParsePhoneNumberRejectsZero(t *testing.T) {
	if _, err := ParsePhoneNumber(0); !errors.Is(err, ErrInvalidPhoneNumber) {
		t.Fatalf("expected ErrInvalidPhoneNumber, got %v", err)
	}
}

func TestParsePhoneNumberRejectsSingleDigit(t *testing.T) {
	if _, err := ParsePhoneNumber(5); !errors.Is(err, ErrInvalidPhoneNumber) {
		t.Fatalf("expected ErrInvalidPhoneNumber, got %v", err)
	}
}

func TestParsePhoneNumberKnownCallingCodeLengths(t *testing.T) {
	cases := []struct {
		name        string
		e164        uint64
		wantCC      int
		wantSubDigs string
	}{
		{"nanpa 1-digit code", 15555550199, 1, "5555550199"},
		{"uk 2-digit code", 442079460958, 44, "2079460958"},
		{"nigeria 3-digit code", 2348031234567, 234, "8031234567"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParsePhoneNumber(c.e164)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.CountryCode != c.wantCC || got.SubscriberDigits != c.wantSubDigs {
				t.Fatalf("got %+v, want CountryCode=%d SubscriberDigits=%q", got, c.wantCC, c.wantSubDigs)
			}
		})
	}
}

func TestParsePhoneNumberFallsBackToNANPAForUnknownCode(t *testing.T) {
	// None of 902, 90 or 9 is a known calling code at its length, so parsing
	// falls back to treating the leading digit as the code.
	got, err := ParsePhoneNumber(902345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CountryCode != 9 || got.SubscriberDigits != "02345" {
		t.Fatalf("got %+v, want CountryCode=9 SubscriberDigits=02345", got)
	}
}

func TestParsePhoneNumberRoundTripsThroughUint64(t *testing.T) {
	const e164 = uint64(15555550199)
	p, err := ParsePhoneNumber(e164)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Uint64(); got != e164 {
		t.Fatalf("got %d, want %d", got, e164)
	}
}

func TestPhoneNumberLastDigits(t *testing.T) {
	p := PhoneNumber{CountryCode: 1, SubscriberDigits: "5555550199"}
	if got := p.LastDigits(4); got != "0199" {
		t.Fatalf("got %q, want 0199", got)
	}
	if got := p.LastDigits(20); got != "5555550199" {
		t.Fatalf("requesting more digits than available should return all of them, got %q", got)
	}
}

func TestPhoneNumberString(t *testing.T) {
	p := PhoneNumber{CountryCode: 44, SubscriberDigits: "2079460958"}
	if got := p.String(); got != "+442079460958" {
		t.Fatalf("got %q, want +442079460958", got)
	}
}
