// Package auth handles account registration and bearer token issuance.
// Tokens are HMAC-signed JWTs carrying the account email as subject.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/shelfwise/library-service/internal/app/domain/user"
	"github.com/shelfwise/library-service/internal/app/storage"
	"github.com/shelfwise/library-service/internal/errors"
	"github.com/shelfwise/library-service/pkg/logger"
)

// MinPasswordLength is the shortest acceptable password.
const MinPasswordLength = 6

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Service implements registration and login.
type Service struct {
	store  storage.UserStore
	secret []byte
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// New creates an auth service signing tokens with secret, valid for ttl.
func New(store storage.UserStore, secret []byte, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		store:  store,
		secret: secret,
		ttl:    ttl,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (user.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return user.User{}, errors.Validation("Invalid email address")
	}
	if len(password) < MinPasswordLength {
		return user.User{}, errors.Validation(fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return user.User{}, errors.InvalidOperation("Email already registered")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, errors.Internal("failed to hash password", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Email:          email,
		HashedPassword: string(hash),
		IsActive:       true,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return user.User{}, errors.InvalidOperation("Email already registered")
		}
		return user.User{}, err
	}

	s.log.WithField("user_id", created.ID).Info("account registered")
	return created, nil
}

// IssueToken verifies the credentials and returns a signed bearer token.
func (s *Service) IssueToken(ctx context.Context, email, password string) (Token, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Token{}, errors.Unauthorized("Incorrect email or password")
		}
		return Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)); err != nil {
		return Token{}, errors.Unauthorized("Incorrect email or password")
	}
	if !u.IsActive {
		return Token{}, errors.Unauthorized("Inactive user")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": u.Email,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, errors.Internal("failed to sign token", err)
	}
	return Token{AccessToken: signed, TokenType: "bearer"}, nil
}

// ParseToken validates a bearer token and returns the subject email.
func (s *Service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.InvalidToken(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.InvalidToken(nil)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.InvalidToken(err)
	}
	return sub, nil
}
