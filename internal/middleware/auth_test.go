package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shelfwise/library-service/internal/app/services/auth"
	"github.com/shelfwise/library-service/internal/app/storage/memory"
)

func newAuthMiddleware(t *testing.T) (*AuthMiddleware, *auth.Service) {
	t.Helper()
	svc := auth.New(memory.New(), []byte("test-secret"), 30*time.Minute, nil)
	mw := NewAuthMiddleware(svc, nil, []string{"/register", "/token", "/healthz"})
	return mw, svc
}

func issueToken(t *testing.T, svc *auth.Service) string {
	t.Helper()
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := svc.Register(ctx, "librarian@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, err := svc.IssueToken(ctx, "librarian@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok.AccessToken
}

func protectedHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	mw, _ := newAuthMiddleware(t)
	handler := mw.Handler(protectedHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/books", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("missing WWW-Authenticate header")
	}
}

func TestAuthMiddlewareRejectsMalformedHeader(t *testing.T) {
	mw, _ := newAuthMiddleware(t)
	handler := mw.Handler(protectedHandler(t))

	for _, header := range []string{"Basic abc", "Bearer", "token-without-scheme"} {
		req := httptest.NewRequest(http.MethodPost, "/books", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	mw, _ := newAuthMiddleware(t)
	handler := mw.Handler(protectedHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/books", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	mw, svc := newAuthMiddleware(t)
	token := issueToken(t, svc)

	var gotEmail string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEmail = GetUserEmail(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/books", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotEmail != "librarian@example.com" {
		t.Fatalf("expected email in context, got %q", gotEmail)
	}
}

func TestAuthMiddlewareSkipsPublicPaths(t *testing.T) {
	mw, _ := newAuthMiddleware(t)
	handler := mw.Handler(protectedHandler(t))

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/register"},
		{http.MethodPost, "/token"},
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/books"},
		{http.MethodGet, "/books/1"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestAuthMiddlewareGuardsReaderReads(t *testing.T) {
	mw, _ := newAuthMiddleware(t)
	handler := mw.Handler(protectedHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/readers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated reader list, got %d", rec.Code)
	}
}

func tokenFor(t *testing.T, svc *auth.Service, email string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Register(ctx, email, "s3cret-pass"); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	tok, err := svc.IssueToken(ctx, email, "s3cret-pass")
	if err != nil {
		t.Fatalf("issue token for %s: %v", email, err)
	}
	return tok.AccessToken
}

func TestRateLimiterKeysOnAuthenticatedEmail(t *testing.T) {
	mw, svc := newAuthMiddleware(t)
	rl := NewRateLimiter(1, 1, nil)

	// Auth must run before the limiter so the email lands on the context.
	handler := mw.Handler(rl.Handler(protectedHandler(t)))

	first := tokenFor(t, svc, "genly@ekumen.example")
	second := tokenFor(t, svc, "estraven@gethen.example")

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/books", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(first); code != http.StatusOK {
		t.Fatalf("expected 200 for first request, got %d", code)
	}
	if code := send(first); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}

	// The second user shares the remote address but has its own bucket.
	if code := send(second); code != http.StatusOK {
		t.Fatalf("expected 200 for second user, got %d", code)
	}
}

func TestRateLimiterThrottles(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(protectedHandler(t))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/books", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for fresh client, got %d", rec.Code)
	}
}

func TestCORSPreflights(t *testing.T) {
	mw := NewCORSMiddleware([]string{"*"})
	handler := mw.Handler(protectedHandler(t))

	req := httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "https://reader.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://reader.example" {
		t.Fatalf("missing allow-origin header")
	}
}
