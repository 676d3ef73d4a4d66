package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines the session token payload. No expiry claim is set;
// token lifetime is enforced at the boundary, not here.
type Claims struct {
	Username  string   `json:"username"`
	GroupIDs  []string `json:"groupIds,omitempty"`
	SessionID string   `json:"sessionId"`
	AccountID string   `json:"accountId"`
	jwtlib.RegisteredClaims
}

// Generate issues a signed session token carrying the given identity.
func Generate(accountID, username, sessionID string, groupIDs []string, secret string) (string, error) {
	claims := Claims{
		Username:  username,
		GroupIDs:  groupIDs,
		SessionID: sessionID,
		AccountID: accountID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:   "tessellate",
			IssuedAt: jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
