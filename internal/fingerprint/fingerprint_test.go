package fingerprint

import (
	"errors"
	"testing"
)

func TestNew_Deterministic(t *testing.T) {
	k1, err := New("acme", "gpt-4", "What are your support hours?")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	k2, err := New("acme", "gpt-4", "What are your support hours?")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected identical keys, got %v and %v", k1, k2)
	}
}

func TestNew_NormalizationCollisions(t *testing.T) {
	base, err := New("acme", "gpt-4", "what are your support hours?")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	variants := []string{
		"What Are Your Support Hours?",
		"  what are your support hours?  ",
		"what\tare your\n support   hours?",
	}
	for _, v := range variants {
		k, err := New("acme", "gpt-4", v)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", v, err)
		}
		if k.Hash != base.Hash {
			t.Errorf("expected %q to collide with base query, got %s", v, k.Hash)
		}
	}
}

func TestNew_DistinctTriples(t *testing.T) {
	base, _ := New("acme", "gpt-4", "hello")

	others := []struct {
		tenant, model, query string
	}{
		{"globex", "gpt-4", "hello"},
		{"acme", "gpt-3.5", "hello"},
		{"acme", "gpt-4", "hello there"},
	}
	for _, o := range others {
		k, err := New(o.tenant, o.model, o.query)
		if err != nil {
			t.Fatalf("New(%q,%q,%q) failed: %v", o.tenant, o.model, o.query, err)
		}
		if k.Hash == base.Hash {
			t.Errorf("expected distinct hash for (%s,%s,%q)", o.tenant, o.model, o.query)
		}
	}
}

func TestNew_InvalidInput(t *testing.T) {
	cases := []struct {
		name                 string
		tenant, model, query string
	}{
		{"empty tenant", "", "gpt-4", "hi"},
		{"empty model", "acme", "", "hi"},
		{"empty query", "acme", "gpt-4", "   "},
		{"invalid utf8", "acme", "gpt-4", string([]byte{0xff, 0xfe})},
		{"colon in tenant", "ac:me", "gpt-4", "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.tenant, tc.model, tc.query)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestKey_String(t *testing.T) {
	k, err := New("acme", "gpt-4", "hello")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	want := "cache:acme:gpt-4:" + k.Hash
	if k.String() != want {
		t.Fatalf("expected %q, got %q", want, k.String())
	}
}
