package auth

import (
	"context"
	"errors"
	"testing"

	domainauth "bakramandi/internal/domain/auth"
	domainuser "bakramandi/internal/domain/user"
	"bakramandi/internal/infra/security"
	"bakramandi/internal/infra/storage/memory"
)

func newTestService() *Service {
	return &Service{
		Users:     memory.NewUserRepository(),
		Sessions:  memory.NewSessionStore(),
		Passwords: security.BcryptHasher{},
		Tokens:    security.RandomTokenGenerator{},
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{
		Email:      "Farmer@Example.com",
		Name:       "Farmer",
		Password:   "longenough",
		WantToSell: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.User.Email != "farmer@example.com" {
		t.Fatalf("email not normalized: %q", result.User.Email)
	}
	if result.Token == "" {
		t.Fatal("no session token issued")
	}
	if !result.User.HasRole(domainuser.RoleSeller) {
		t.Fatalf("seller role missing: %v", result.User.Roles)
	}

	login, err := svc.Login(ctx, LoginParams{Email: "farmer@example.com", Password: "longenough"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.ID != result.User.ID {
		t.Fatalf("login user = %v, want %v", login.User.ID, result.User.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "short"}); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("err = %v, want ErrPasswordTooShort", err)
	}
	if _, err := svc.Register(ctx, RegisterParams{Name: "A", Password: "longenough"}); !errors.Is(err, domainuser.ErrEmailRequired) {
		t.Fatalf("err = %v, want ErrEmailRequired", err)
	}

	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "longenough"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterParams{Email: "A@B.C", Name: "B", Password: "longenough"}); !errors.Is(err, domainuser.ErrEmailAlreadyUsed) {
		t.Fatalf("err = %v, want ErrEmailAlreadyUsed", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "longenough"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Login(ctx, LoginParams{Email: "a@b.c", Password: "wrongpass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, LoginParams{Email: "nobody@b.c", Password: "longenough"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestResolveTokenAndLogout(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	result, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "longenough"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	resolved, err := svc.ResolveToken(ctx, result.Token)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if resolved.User.ID != result.User.ID {
		t.Fatalf("resolved user = %v, want %v", resolved.User.ID, result.User.ID)
	}

	if err := svc.Logout(ctx, result.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.ResolveToken(ctx, result.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound after logout", err)
	}
}
