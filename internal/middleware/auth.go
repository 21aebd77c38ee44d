// Package middleware provides the HTTP middleware chain for the library
// service.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/shelfwise/library-service/internal/errors"
	"github.com/shelfwise/library-service/internal/httputil"
	"github.com/shelfwise/library-service/pkg/logger"
)

type contextKey string

const userEmailKey contextKey = "user_email"

// TokenParser validates a bearer token and returns the subject email.
type TokenParser interface {
	ParseToken(tokenString string) (string, error)
}

// AuthMiddleware guards mutating endpoints with bearer token authentication.
type AuthMiddleware struct {
	parser    TokenParser
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates an authentication middleware. Requests to
// skipPaths pass through unauthenticated, as do catalog reads (GET on the
// /books collection).
func NewAuthMiddleware(parser TokenParser, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth-middleware")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{parser: parser, log: log, skipPaths: skip}
}

func (m *AuthMiddleware) skip(r *http.Request) bool {
	if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
		return true
	}
	if r.Method == http.MethodGet {
		return r.URL.Path == "/books" || strings.HasPrefix(r.URL.Path, "/books/")
	}
	return false
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Not authenticated"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, errors.Unauthorized("Not authenticated"))
			return
		}

		email, err := m.parser.ParseToken(parts[1])
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Warn("token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userEmailKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	w.Header().Set("WWW-Authenticate", "Bearer")
	httputil.WriteError(w, serviceErr.HTTPStatus, serviceErr.Message)

	m.log.WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("authentication failed")
}

// GetUserEmail extracts the authenticated email from the context, or "".
func GetUserEmail(ctx context.Context) string {
	email, _ := ctx.Value(userEmailKey).(string)
	return email
}
