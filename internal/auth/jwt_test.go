package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	tok, err := SignJWT("alice", "s3cret", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	uid, err := ParseJWT(tok, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uid != "alice" {
		t.Fatalf("unexpected subject %q", uid)
	}
}

func TestParse_RejectsWrongSecretAndExpired(t *testing.T) {
	tok, _ := SignJWT("alice", "s3cret", time.Minute)
	if _, err := ParseJWT(tok, "other"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	expired, _ := SignJWT("alice", "s3cret", -time.Minute)
	if _, err := ParseJWT(expired, "s3cret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
