package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"financas/internal/core"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

var errMissingToken = fmt.Errorf("missing bearer token: %w", core.ErrUnauthorized)

// WithUserID stores userID in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}

// RequireUser rejects requests without a valid bearer token. onFail writes
// the rejection.
func (s *Service) RequireUser(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			tokenStr, found := strings.CutPrefix(h, "Bearer ")
			if !found || tokenStr == "" {
				onFail(w, r, errMissingToken)
				return
			}
			uid, err := s.ParseToken(tokenStr)
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}
