package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	s := NewSigner("secret", 0)
	now := time.Unix(1_700_000_000, 0)

	raw, claims, err := s.Mint("user-1", "courses/c1/recordings/r1.mp4", "c1", now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if claims.ExpiresAt != now.Add(600*time.Second).Unix() {
		t.Fatalf("expected 600s lifetime, got exp=%d", claims.ExpiresAt)
	}
	if !LooksSigned(raw) {
		t.Fatalf("token must have exactly one dot: %s", raw)
	}

	got, err := s.VerifyAt(raw, now.Add(599*time.Second))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != claims {
		t.Fatalf("claims mismatch: %+v vs %+v", got, claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := NewSigner("secret", time.Minute)
	now := time.Unix(1_700_000_000, 0)
	raw, _, _ := s.Mint(GuestSubject, "k", "c", now)
	if _, err := s.VerifyAt(raw, now.Add(time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	s := NewSigner("secret", 0)
	now := time.Unix(1_700_000_000, 0)
	raw, claims, _ := s.Mint("user-1", "k1", "c1", now)

	claims.Key = "k2"
	forged, _ := json.Marshal(claims)
	sig := raw[strings.Index(raw, ".")+1:]
	tampered := base64.RawURLEncoding.EncodeToString(forged) + "." + sig

	if _, err := s.VerifyAt(tampered, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw, _, _ := NewSigner("one", 0).Mint("u", "k", "c", now)
	if _, err := NewSigner("two", 0).VerifyAt(raw, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	s := NewSigner("secret", 0)
	for _, raw := range []string{"", "abc", "a.b.c", ".sig", "payload.", "!!!.???"} {
		if _, err := s.Verify(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestUnconfiguredSignerFailsClosed(t *testing.T) {
	s := NewSigner("", 0)
	raw, _, err := s.Mint("u", "k", "c", time.Now())
	if !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
	if raw != "" {
		t.Fatalf("no token may be emitted, got %q", raw)
	}
	if _, err := s.Verify("a.b"); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured on verify, got %v", err)
	}
}

func TestLooksSigned(t *testing.T) {
	if LooksSigned("h.p.s") {
		t.Fatal("JWT must not look like a playback token")
	}
	if !LooksSigned("p.s") {
		t.Fatal("playback token not recognised")
	}
}
