package auth

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// AdminRole grants the conversation listing.
const AdminRole = "admin"

// CustomClaims is the payload of a bearer token. The subject is the user id.
type CustomClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies bearer tokens with a shared HS256 secret.
type Tokens struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokens(secret string, duration time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), duration: duration, now: time.Now}
}

// GenerateToken creates a signed JWT for userID.
func (t *Tokens) GenerateToken(userID string, roles []string) (string, error) {
	now := t.now()
	claims := &CustomClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ValidateToken checks signature, algorithm and expiry. Any failure is ErrInvalidToken.
func (t *Tokens) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
