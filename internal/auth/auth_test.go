package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"financas/internal/core"
	"financas/internal/log"
	"financas/internal/storage/memory"
)

func newTestAuth() *Service {
	return NewService(memory.New(), []byte("test-secret"), time.Hour, log.Discard())
}

func TestSignUpAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestAuth()

	sess, err := s.SignUp(ctx, "  Ana@Example.com ", "segredo1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if sess.User.Email != "ana@example.com" || sess.Token == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	uid, err := s.ParseToken(sess.Token)
	if err != nil || uid != sess.User.ID {
		t.Fatalf("token should carry user id, got %q (err=%v)", uid, err)
	}

	if _, err := s.SignUp(ctx, "ana@example.com", "outrasenha"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	login, err := s.Login(ctx, "ANA@example.com", "segredo1")
	if err != nil || login.User.ID != sess.User.ID {
		t.Fatalf("login: %+v (err=%v)", login, err)
	}
	if _, err := s.Login(ctx, "ana@example.com", "errada"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := s.Login(ctx, "nobody@example.com", "segredo1"); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	s := newTestAuth()
	if _, err := s.SignUp(context.Background(), "not-an-email", "segredo1"); !errors.Is(err, core.ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := s.SignUp(context.Background(), "a@b.com", "123"); !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if _, err := s.SignUp(context.Background(), "a@b.com", strings.Repeat("a", 80)); !errors.Is(err, core.ErrPasswordTooLong) {
		t.Fatalf("expected too-long password, got %v", err)
	}
	// 40 runes, 80 bytes.
	if _, err := s.SignUp(context.Background(), "a@b.com", strings.Repeat("é", 40)); !errors.Is(err, core.ErrPasswordTooLong) {
		t.Fatalf("expected too-long multibyte password, got %v", err)
	}
	if _, err := s.SignUp(context.Background(), "a@b.com", strings.Repeat("a", 72)); err != nil {
		t.Fatalf("72 byte password must be accepted: %v", err)
	}
}

func TestParseTokenRejectsBadTokens(t *testing.T) {
	s := newTestAuth()
	sess, _ := s.SignUp(context.Background(), "a@b.com", "segredo1")

	other := NewService(memory.New(), []byte("other-secret"), time.Hour, log.Discard())
	if _, err := other.ParseToken(sess.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("token signed with another secret must fail, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.ParseToken(sess.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expired token must fail, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"})
	raw, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := s.ParseToken(raw); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("unsigned token must fail, got %v", err)
	}
}

func TestRequireUser(t *testing.T) {
	s := newTestAuth()
	sess, _ := s.SignUp(context.Background(), "a@b.com", "segredo1")

	var seen string
	h := s.RequireUser(func(w http.ResponseWriter, r *http.Request, err error) {
		if !errors.Is(err, core.ErrUnauthorized) {
			t.Errorf("onFail got %v", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != sess.User.ID {
		t.Fatalf("expected pass-through for %s, got code %d user %q", sess.User.ID, rec.Code, seen)
	}
}
