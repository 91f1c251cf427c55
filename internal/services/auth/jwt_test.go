package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)

	token, expiresAt, err := manager.GenerateAccessToken("Ann@X.io", "Ann")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	identity, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if identity.UserID != "ann@x.io" || identity.DisplayName != "Ann" || identity.Token != token {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestJWTRejectsWrongSecretAndExpired(t *testing.T) {
	issuer := NewJWTManager("secret", time.Minute)
	token, _, err := issuer.GenerateAccessToken("ann@x.io", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewJWTManager("other", time.Minute).ParseAccessToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong secret, got %v", err)
	}

	late := NewJWTManager("secret", time.Minute)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := late.ParseAccessToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}

	if _, err := issuer.ParseAccessToken(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity")
	}
	ctx := WithIdentity(context.Background(), Identity{UserID: "ann@x.io"})
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.UserID != "ann@x.io" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}
