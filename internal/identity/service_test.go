package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Email: "Shopper@Example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "shopper@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}

	authed, err := svc.Authenticate(ctx, Credentials{Email: "shopper@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected same user, got %s and %s", user.ID, authed.ID)
	}
	if authed.LastLogin.IsZero() {
		t.Fatal("expected last login to be recorded")
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "shopper@example.com", Password: "s3cret-pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Email: "shopper@example.com", Password: "wrong-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	if _, err := svc.Register(context.Background(), Credentials{Email: "shopper@example.com", Password: "short"}); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "shopper@example.com", Password: "s3cret-pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Email: "SHOPPER@example.com", Password: "other-pass-1"}); err == nil {
		t.Fatal("expected duplicate email error")
	}
}
