package agentcomm

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// TokenAuthority issues and validates the bearer tokens that authenticate
// agent traffic on the direct channel. Both sides share one HMAC signing key.
type TokenAuthority struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenAuthority creates a token authority for the given shared key.
func NewTokenAuthority(signingKey string) *TokenAuthority {
	return &TokenAuthority{
		signingKey: []byte(signingKey),
		ttl:        5 * time.Minute,
	}
}

type agentClaims struct {
	AgentID string `json:"agent_id"`
	jwt.RegisteredClaims
}

// Issue creates a short-lived token identifying the given agent.
func (a *TokenAuthority) Issue(agentID id.AgentID) (string, error) {
	now := time.Now()
	claims := agentClaims{
		AgentID: agentID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign agent token")
	}
	return signed, nil
}

// Validate parses a bearer token and returns the agent id it asserts.
func (a *TokenAuthority) Validate(tokenString string) (id.AgentID, error) {
	claims := &agentClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid agent token")
	}
	if !token.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid agent token")
	}
	return id.ParseAgentID(claims.AgentID)
}
