package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenContentType marks a conversation-service access token.
const accessTokenContentType = "twilio-fpa;v=1"

// AccessTokenTTL is the lifetime of a conversation-service access token.
const AccessTokenTTL = 24 * time.Hour

type AccessTokenConfig struct {
	AccountSID string
	APIKeySID  string
	APISecret  string
	ServiceSID string
}

type ChatGrant struct {
	ServiceSID string `json:"service_sid"`
}

type Grants struct {
	Identity string     `json:"identity"`
	Chat     *ChatGrant `json:"chat,omitempty"`
}

type AccessClaims struct {
	Grants Grants `json:"grants"`
	jwt.RegisteredClaims
}

// AccessTokens issues tokens that let a client talk to the external
// conversation service directly, as the identity mirrored for its user.
type AccessTokens struct {
	cfg AccessTokenConfig
	ttl time.Duration
	now func() time.Time
}

func NewAccessTokens(cfg AccessTokenConfig) *AccessTokens {
	return &AccessTokens{cfg: cfg, ttl: AccessTokenTTL, now: time.Now}
}

// Issue returns a signed access token carrying a chat grant for identity.
func (a *AccessTokens) Issue(identity string) (string, error) {
	now := a.now()
	claims := AccessClaims{
		Grants: Grants{
			Identity: identity,
			Chat:     &ChatGrant{ServiceSID: a.cfg.ServiceSID},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%d", a.cfg.APIKeySID, now.Unix()),
			Issuer:    a.cfg.APIKeySID,
			Subject:   a.cfg.AccountSID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = accessTokenContentType
	return token.SignedString([]byte(a.cfg.APISecret))
}
