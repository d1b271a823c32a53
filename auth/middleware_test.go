package auth

import (
	"chat-relay/errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)
	valid, err := tokens.GenerateToken("U1", []string{AdminRole})
	require.NoError(t, err)

	var seen string
	var admin bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		admin = HasRole(r.Context(), AdminRole)
		w.WriteHeader(http.StatusNoContent)
	})
	var failure error
	onError := func(w http.ResponseWriter, _ *http.Request, err error) {
		failure = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	handler := Middleware(tokens, onError, next)

	t.Run("missing token", func(t *testing.T) {
		req := require.New(t)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))
		req.Equal(http.StatusUnauthorized, rec.Code)
		req.ErrorIs(failure, errors.ErrMissingToken)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		r.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		req.Equal(http.StatusUnauthorized, rec.Code)
		req.ErrorIs(failure, errors.ErrInvalidToken)
	})

	t.Run("header token", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		r.Header.Set("Authorization", "Bearer "+valid)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		req.Equal(http.StatusNoContent, rec.Code)
		req.Equal("U1", seen)
		req.True(admin)
	})

	t.Run("query token for websocket handshakes", func(t *testing.T) {
		req := require.New(t)
		seen = ""
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/CH1/live?access_token="+valid, nil))
		req.Equal(http.StatusNoContent, rec.Code)
		req.Equal("U1", seen)
	})
}
