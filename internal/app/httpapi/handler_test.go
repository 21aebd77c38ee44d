package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	app "github.com/shelfwise/library-service/internal/app"
	"github.com/shelfwise/library-service/internal/middleware"
)

// newTestServer builds the full stack the way the server binary does: the
// REST handler guarded by the auth middleware, backed by the in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	application := app.New(app.Stores{}, app.Options{
		AuthSecret: []byte("test-secret"),
		TokenTTL:   30 * time.Minute,
	}, nil)

	authMW := middleware.NewAuthMiddleware(application.Auth, nil, []string{
		"/", "/healthz", "/metrics", "/register", "/token",
	})
	srv := httptest.NewServer(authMW.Handler(NewHandler(application)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, rawurl, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, rawurl, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, rawurl, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func doJSONList(t *testing.T, rawurl, token string) (*http.Response, []map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, rawurl, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", rawurl, err)
	}
	defer resp.Body.Close()

	var decoded []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func obtainToken(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/register", "", map[string]any{
		"email":    "librarian@example.com",
		"password": "s3cret-pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: expected 200, got %d (%v)", resp.StatusCode, body)
	}

	form := url.Values{"username": {"librarian@example.com"}, "password": {"s3cret-pass"}}
	tokResp, err := http.Post(srv.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	defer tokResp.Body.Close()
	if tokResp.StatusCode != http.StatusOK {
		t.Fatalf("token: expected 200, got %d", tokResp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(tokResp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token response: %+v", tok)
	}
	return tok.AccessToken
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["message"] != "Welcome to Library Management System API" {
		t.Fatalf("unexpected banner: %v", body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %v", resp.StatusCode, body)
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	obtainToken(t, srv)

	form := url.Values{"username": {"librarian@example.com"}, "password": {"wrong"}}
	resp, err := http.Post(srv.URL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Detail != "Incorrect email or password" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	srv := newTestServer(t)
	obtainToken(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/register", "", map[string]any{
		"email":    "librarian@example.com",
		"password": "another-pass",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["detail"] != "Email already registered" {
		t.Fatalf("unexpected detail: %v", body)
	}
}

func TestBookLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	// Unauthenticated writes are rejected.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/books", "", map[string]any{
		"title": "Dune", "author": "Frank Herbert",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// copies_available defaults to 1 when omitted.
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert", "isbn": "978-0-441-17271-9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: expected 200, got %d (%v)", resp.StatusCode, created)
	}
	if created["copies_available"] != float64(1) {
		t.Fatalf("expected default 1 copy, got %v", created["copies_available"])
	}
	if created["isbn"] != "9780441172719" {
		t.Fatalf("expected normalized isbn, got %v", created["isbn"])
	}
	if created["description"] != nil {
		t.Fatalf("expected null description, got %v", created["description"])
	}
	id := int64(created["id"].(float64))

	// Reads are public.
	resp, got := doJSON(t, http.MethodGet, fmt.Sprintf("%s/books/%d", srv.URL, id), "", nil)
	if resp.StatusCode != http.StatusOK || got["title"] != "Dune" {
		t.Fatalf("get: %d %v", resp.StatusCode, got)
	}

	resp, list := doJSONList(t, srv.URL+"/books", "")
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: %d %v", resp.StatusCode, list)
	}

	// PUT replaces every field.
	resp, updated := doJSON(t, http.MethodPut, fmt.Sprintf("%s/books/%d", srv.URL, id), token, map[string]any{
		"title": "Dune Messiah", "author": "Frank Herbert", "copies_available": 4,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (%v)", resp.StatusCode, updated)
	}
	if updated["title"] != "Dune Messiah" || updated["copies_available"] != float64(4) || updated["isbn"] != nil {
		t.Fatalf("unexpected updated book: %v", updated)
	}

	resp, body := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/books/%d", srv.URL, id), token, nil)
	if resp.StatusCode != http.StatusOK || body["message"] != "Book deleted successfully" {
		t.Fatalf("delete: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/books/%d", srv.URL, id), "", nil)
	if resp.StatusCode != http.StatusNotFound || body["detail"] != "Book not found" {
		t.Fatalf("get after delete: %d %v", resp.StatusCode, body)
	}
}

func TestBookValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert", "isbn": "123",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["detail"] != "ISBN must be 10 or 13 characters long" {
		t.Fatalf("unexpected detail: %v", body)
	}
}

func TestReaderEndpointsRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	resp, _ := doJSONList(t, srv.URL+"/readers", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/readers", token, map[string]any{
		"name": "Paul Atreides", "email": "paul@arrakis.example",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create reader: %d %v", resp.StatusCode, created)
	}

	resp, list := doJSONList(t, srv.URL+"/readers", token)
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list readers: %d %v", resp.StatusCode, list)
	}
}

func TestBorrowReturnFlow(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	_, b := doJSON(t, http.MethodPost, srv.URL+"/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert", "copies_available": 1,
	})
	bookID := int64(b["id"].(float64))

	_, rd := doJSON(t, http.MethodPost, srv.URL+"/readers", token, map[string]any{
		"name": "Paul Atreides", "email": "paul@arrakis.example",
	})
	readerID := int64(rd["id"].(float64))

	resp, l := doJSON(t, http.MethodPost, srv.URL+"/borrow", token, map[string]any{
		"book_id": bookID, "reader_id": readerID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("borrow: %d %v", resp.StatusCode, l)
	}
	if l["return_date"] != nil {
		t.Fatalf("expected null return_date, got %v", l["return_date"])
	}
	loanID := int64(l["id"].(float64))

	// Last copy is gone.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/borrow", token, map[string]any{
		"book_id": bookID, "reader_id": readerID,
	})
	if resp.StatusCode != http.StatusBadRequest || body["detail"] != "No copies of this book available" {
		t.Fatalf("second borrow: %d %v", resp.StatusCode, body)
	}

	resp, list := doJSONList(t, fmt.Sprintf("%s/borrowed-books/reader/%d", srv.URL, readerID), token)
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("reader loans: %d %v", resp.StatusCode, list)
	}

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/return/%d", srv.URL, loanID), token, nil)
	if resp.StatusCode != http.StatusOK || body["message"] != "Book returned successfully" {
		t.Fatalf("return: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/return/%d", srv.URL, loanID), token, nil)
	if resp.StatusCode != http.StatusBadRequest || body["detail"] != "This book has already been returned" {
		t.Fatalf("double return: %d %v", resp.StatusCode, body)
	}

	resp, got := doJSON(t, http.MethodGet, fmt.Sprintf("%s/books/%d", srv.URL, bookID), "", nil)
	if resp.StatusCode != http.StatusOK || got["copies_available"] != float64(1) {
		t.Fatalf("expected copy restored: %d %v", resp.StatusCode, got)
	}

	// History keeps the closed loan.
	resp, list = doJSONList(t, srv.URL+"/borrowed-books", token)
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("loan history: %d %v", resp.StatusCode, list)
	}
	if list[0]["return_date"] == nil {
		t.Fatal("expected closed loan in history")
	}
}

func TestBorrowCapMessage(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	_, b := doJSON(t, http.MethodPost, srv.URL+"/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert", "copies_available": 5,
	})
	bookID := int64(b["id"].(float64))

	_, rd := doJSON(t, http.MethodPost, srv.URL+"/readers", token, map[string]any{
		"name": "Paul Atreides", "email": "paul@arrakis.example",
	})
	readerID := int64(rd["id"].(float64))

	for i := 0; i < 3; i++ {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/borrow", token, map[string]any{
			"book_id": bookID, "reader_id": readerID,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("borrow %d: %d %v", i+1, resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/borrow", token, map[string]any{
		"book_id": bookID, "reader_id": readerID,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	detail, _ := body["detail"].(string)
	if !strings.Contains(detail, "maximum number of borrowed books (3)") {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestBorrowUnknownEntities(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/borrow", token, map[string]any{
		"book_id": 12345, "reader_id": 1,
	})
	if resp.StatusCode != http.StatusNotFound || body["detail"] != "Book not found" {
		t.Fatalf("unknown book: %d %v", resp.StatusCode, body)
	}

	_, b := doJSON(t, http.MethodPost, srv.URL+"/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert",
	})
	bookID := int64(b["id"].(float64))

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/borrow", token, map[string]any{
		"book_id": bookID, "reader_id": 12345,
	})
	if resp.StatusCode != http.StatusNotFound || body["detail"] != "Reader not found" {
		t.Fatalf("unknown reader: %d %v", resp.StatusCode, body)
	}
}

func TestTrailingSlashEquivalence(t *testing.T) {
	srv := newTestServer(t)
	token := obtainToken(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/books/", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on trailing slash create, got %d", resp.StatusCode)
	}

	resp, list := doJSONList(t, srv.URL+"/books/", "")
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("trailing slash list: %d %v", resp.StatusCode, list)
	}
}
