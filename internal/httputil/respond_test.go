package httputil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/shelfwise/library-service/internal/errors"
)

func TestWriteServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, errors.NotFound("Book not found"))

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Detail != "Book not found" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestWriteServiceErrorOpaqueInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, json.Unmarshal([]byte("{"), &struct{}{}))

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Detail != "Internal server error" {
		t.Fatalf("internal cause leaked: %q", body.Detail)
	}
}
