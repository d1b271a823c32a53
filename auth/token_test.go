package auth

import (
	"chat-relay/errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-at-least-32-bytes-long!!"

func TestGenerateAndValidateToken(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens(secret, time.Hour)

	token, err := tokens.GenerateToken("U1", []string{AdminRole})
	req.NoError(err)

	claims, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal("U1", claims.Subject)
	req.Equal([]string{AdminRole}, claims.Roles)
}

func TestValidateToken_Rejections(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)
	valid, err := tokens.GenerateToken("U1", nil)
	require.NoError(t, err)

	expired := NewTokens(secret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken("U1", nil)
	require.NoError(t, err)

	foreign, err := NewTokens("another-secret-of-sufficient-size!", time.Hour).GenerateToken("U1", nil)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "U1", Issuer: issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := NewTokens(secret, time.Hour).GenerateToken("", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", old},
		{"wrong secret", foreign},
		{"unsigned", none},
		{"tampered", valid[:strings.LastIndex(valid, ".")] + ".AAAA"},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}

func TestAccessToken_Carries_Chat_Grant(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewAccessTokens(AccessTokenConfig{
		AccountSID: "AC123",
		APIKeySID:  "SK456",
		APISecret:  "api-secret",
		ServiceSID: "IS789",
	})
	tokens.now = func() time.Time { return now }

	signed, err := tokens.Issue("U1")
	req.NoError(err)

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return []byte("api-secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return now.Add(time.Minute) }))
	req.NoError(err)
	req.True(token.Valid)
	req.Equal(accessTokenContentType, token.Header["cty"])
	req.Equal("HS256", token.Header["alg"])
	req.Equal("U1", claims.Grants.Identity)
	req.Equal("IS789", claims.Grants.Chat.ServiceSID)
	req.Equal("SK456", claims.Issuer)
	req.Equal("AC123", claims.Subject)
	req.Equal("SK456-1772366400", claims.ID)
	req.True(now.Add(24*time.Hour).Equal(claims.ExpiresAt.Time))
}
