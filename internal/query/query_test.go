package query

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]Query{
		"iPhone 15":        "iphone 15",
		"  iphone 15 \t\n": "iphone 15",
		"IPHONE 15":        "iphone 15",
		"":                 "",
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	if Normalize(" Pixel 9 ") != Normalize("pixel 9") {
		t.Fatal("queries differing only in case/whitespace must match")
	}
}

func TestParseRejectsBlank(t *testing.T) {
	if _, err := Parse("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	q, err := Parse(" Galaxy S24 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.String() != "galaxy s24" {
		t.Fatalf("unexpected query %q", q)
	}
}
