// Package token mints and verifies short-lived playback capabilities.
//
// Wire format: base64url(JSON payload) "." base64url(HMAC-SHA256(JSON payload)),
// unpadded. The MAC covers the exact JSON bytes carried in the first part.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GuestSubject is the subject of tokens issued to unauthenticated callers.
const GuestSubject = "guest"

// DefaultTTL is the lifetime of every playback token.
const DefaultTTL = 600 * time.Second

// Claims is the fixed-shape token payload.
type Claims struct {
	Subject   string `json:"sub"`
	Key       string `json:"key"`
	CourseID  string `json:"courseId"`
	ExpiresAt int64  `json:"exp"`
}

func (c Claims) IsGuest() bool { return c.Subject == GuestSubject }

var (
	ErrMisconfigured    = errors.New("token: signing secret is not configured")
	ErrMalformed        = errors.New("token: malformed")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
)

var enc = base64.RawURLEncoding

type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner never fails: an empty secret yields a signer that refuses to
// mint or verify anything.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) Configured() bool { return s != nil && len(s.secret) > 0 }

func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint signs a token for subject scoped to one storage key and course,
// expiring ttl after now.
func (s *Signer) Mint(subject, key, courseID string, now time.Time) (string, Claims, error) {
	if !s.Configured() {
		return "", Claims{}, ErrMisconfigured
	}
	c := Claims{
		Subject:   subject,
		Key:       key,
		CourseID:  courseID,
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: encode payload: %w", err)
	}
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(s.mac(payload)), c, nil
}

// VerifyAt checks the MAC first, then decodes and checks expiry against now.
func (s *Signer) VerifyAt(raw string, now time.Time) (Claims, error) {
	if !s.Configured() {
		return Claims{}, ErrMisconfigured
	}
	payloadPart, sigPart, ok := strings.Cut(raw, ".")
	if !ok || payloadPart == "" || sigPart == "" || strings.Contains(sigPart, ".") {
		return Claims{}, ErrMalformed
	}
	payload, err := enc.DecodeString(payloadPart)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	sig, err := enc.DecodeString(sigPart)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	if !hmac.Equal(sig, s.mac(payload)) {
		return Claims{}, ErrInvalidSignature
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, ErrMalformed
	}
	if c.Subject == "" || c.Key == "" {
		return Claims{}, ErrMalformed
	}
	if now.Unix() >= c.ExpiresAt {
		return Claims{}, ErrExpired
	}
	return c, nil
}

func (s *Signer) Verify(raw string) (Claims, error) { return s.VerifyAt(raw, time.Now()) }

func (s *Signer) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	return h.Sum(nil)
}

// LooksSigned tells a playback token (one dot) apart from a session JWT
// (two dots) without verifying either.
func LooksSigned(raw string) bool {
	return strings.Count(raw, ".") == 1
}
