package sender

import (
	"strconv"
	"testing"
)

func TestGenerateNumericCodeHasRequestedLength(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6-digit code, got %q", code)
		}
		if _, err := strconv.Atoi(code); err != nil {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}

func TestGenerateNumericCodeDefaultsToSixDigits(t *testing.T) {
	code, err := GenerateNumericCode(0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected default 6-digit code, got %q", code)
	}
}
