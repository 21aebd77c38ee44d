package auth

import (
	"context"
	"testing"
	"time"

	"github.com/shelfwise/library-service/internal/app/storage/memory"
	"github.com/shelfwise/library-service/internal/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), []byte("test-secret"), 30*time.Minute, nil)
}

func TestRegisterAndIssueToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "librarian@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == 0 || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.HashedPassword == "s3cret-pass" {
		t.Fatal("password stored in plain text")
	}

	tok, err := svc.IssueToken(ctx, "librarian@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token: %+v", tok)
	}

	email, err := svc.ParseToken(tok.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if email != "librarian@example.com" {
		t.Fatalf("unexpected subject %q", email)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "s3cret-pass"); errors.GetServiceError(err) == nil {
		t.Fatalf("expected bad email rejection, got %v", err)
	}

	_, err := svc.Register(ctx, "librarian@example.com", "short")
	se := errors.GetServiceError(err)
	if se == nil || se.Message != "Password must be at least 6 characters long" {
		t.Fatalf("expected short password rejection, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "librarian@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Register(ctx, "librarian@example.com", "other-pass")
	se := errors.GetServiceError(err)
	if se == nil || se.Message != "Email already registered" {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}
}

func TestIssueTokenWrongCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "librarian@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, tc := range []struct{ email, password string }{
		{"librarian@example.com", "wrong-pass"},
		{"nobody@example.com", "s3cret-pass"},
	} {
		_, err := svc.IssueToken(ctx, tc.email, tc.password)
		se := errors.GetServiceError(err)
		if se == nil || se.Message != "Incorrect email or password" {
			t.Fatalf("expected credential rejection for %s, got %v", tc.email, err)
		}
		if se.HTTPStatus != 401 {
			t.Fatalf("expected 401, got %d", se.HTTPStatus)
		}
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "librarian@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, err := svc.IssueToken(ctx, "librarian@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := svc.ParseToken(tok.AccessToken + "x"); err == nil {
		t.Fatal("expected rejection of tampered token")
	}
	if _, err := svc.ParseToken("not.a.jwt"); err == nil {
		t.Fatal("expected rejection of malformed token")
	}

	other := New(memory.New(), []byte("other-secret"), 30*time.Minute, nil)
	if _, err := other.ParseToken(tok.AccessToken); err == nil {
		t.Fatal("expected rejection of token signed with another secret")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "librarian@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	tok, err := svc.IssueToken(ctx, "librarian@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	_, err = svc.ParseToken(tok.AccessToken)
	se := errors.GetServiceError(err)
	if se == nil || se.Message != "Could not validate credentials" {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}
