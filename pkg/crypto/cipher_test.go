package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal("ghp_token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("ghp_token")) {
		t.Fatalf("sealed payload leaks plaintext")
	}
	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "ghp_token" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestSealerRejectsForeignKey(t *testing.T) {
	a, _ := NewSealer("a")
	b, _ := NewSealer("b")
	sealed, err := a.Seal("value")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Fatalf("expected error opening with a different key")
	}
}

func TestSealerEmptyValues(t *testing.T) {
	if _, err := NewSealer(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
	s, _ := NewSealer("k")
	sealed, err := s.Seal("")
	if err != nil || sealed != nil {
		t.Fatalf("expected nil payload for empty plaintext, got %v %v", sealed, err)
	}
	if plain, err := s.Open(nil); err != nil || plain != "" {
		t.Fatalf("expected empty plaintext, got %q %v", plain, err)
	}
}
