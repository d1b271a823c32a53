package auth

import (
	"chat-relay/errors"
	"context"
	"net/http"
	"slices"
	"strings"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

// TokenValidator is the verifying half of Tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*CustomClaims, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests without a valid bearer token and injects the
// caller identity into the request context.
func Middleware(validator TokenValidator, onError ErrorWriter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearer(r)
		if !ok {
			onError(w, r, errors.ErrMissingToken)
			return
		}
		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			onError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
		ctx = context.WithValue(ctx, RolesKey, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearer reads "Authorization: Bearer <token>". Browsers cannot set headers on
// a WebSocket handshake, so the access_token query parameter is accepted too.
func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token, true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// UserID returns the authenticated caller, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(RolesKey).([]string)
	return slices.Contains(roles, role)
}
