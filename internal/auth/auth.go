// Package auth handles account sign-up, login and the bearer tokens that
// scope every ledger request to one user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"financas/internal/core"
	"financas/internal/log"
)

const (
	minPasswordLen = 6
	// bcrypt rejects longer inputs
	maxPasswordLen = 72
)

// UserStore persists accounts.
type UserStore interface {
	InsertUser(ctx context.Context, u core.User) error
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
}

// Session is what a successful sign-up or login returns.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Account   `json:"user"`
}

// Account is the public view of a user.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

func NewService(users UserStore, secret []byte, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		users:  users,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentAuth),
	}
}

func validateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return core.ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return core.ErrWeakPassword
	}
	if len(password) > maxPasswordLen {
		return core.ErrPasswordTooLong
	}
	return nil
}

// SignUp creates an account and logs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = core.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{
		ID:           core.NewID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return Session{}, err
		}
		return Session{}, &core.BackendError{Op: "insert user", Err: err}
	}

	s.logger.InfoContext(ctx, "Account created",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpSignUp)
	return s.issue(u)
}

// Login checks the password and returns a fresh session. Unknown emails and
// wrong passwords both yield core.ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = core.NormalizeEmail(email)
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		s.logger.WarnContext(ctx, "Login for unknown email", log.FieldOperation, log.OpLogin)
		return Session{}, core.ErrUnauthorized
	}
	if err != nil {
		return Session{}, &core.BackendError{Op: "get user", Err: err}
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Login with wrong password",
			log.FieldUserID, u.ID,
			log.FieldOperation, log.OpLogin)
		return Session{}, core.ErrUnauthorized
	}
	return s.issue(u)
}

func (s *Service) issue(u core.User) (Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{
		Token:     token,
		ExpiresAt: exp.UTC(),
		User:      Account{ID: u.ID, Email: u.Email},
	}, nil
}

// ParseToken validates a bearer token and returns the user id it carries.
func (s *Service) ParseToken(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", core.ErrUnauthorized
	}
	if claims.Subject == "" {
		return "", core.ErrUnauthorized
	}
	return claims.Subject, nil
}

// Account returns the public view of userID.
func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Account{}, err
		}
		return Account{}, &core.BackendError{Op: "get user", Err: err}
	}
	return Account{ID: u.ID, Email: u.Email}, nil
}
