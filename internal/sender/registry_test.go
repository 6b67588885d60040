package sender

import "testing"

func TestRegistryGetAndNames(t *testing.T) {
	a := NewLastDigitsAdapter(4, 0)
	r, err := NewRegistry(a)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	got, ok := r.Get("last-digits")
	if !ok || got != a {
		t.Fatalf("expected to find adapter by name, got %+v ok=%v", got, ok)
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected lookup of unknown name to fail")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "last-digits" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(NewLastDigitsAdapter(4, 0), NewLastDigitsAdapter(6, 0))
	if err == nil {
		t.Fatal("expected duplicate adapter names to be rejected")
	}
}
