// Package auth verifies join credentials. Tokens are HMAC-signed JWTs;
// the subject claim is the user id.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// Claims is the token payload the relay understands.
type Claims struct {
	Username    string `json:"name,omitempty"`
	GlobalAdmin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token. Any failure, including an
// expired token or a missing subject, surfaces as *core.AuthError.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (core.Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return core.Identity{}, &core.AuthError{Err: err}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return core.Identity{}, &core.AuthError{Err: errors.New("missing subject claim")}
	}
	return core.Identity{
		UserID:      domain.UserID(claims.Subject),
		Username:    claims.Username,
		GlobalAdmin: claims.GlobalAdmin,
	}, nil
}

// Sign mints a token for the identity, used by the dev token endpoint
// and by tests.
func (v *JWTVerifier) Sign(id core.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:    id.Username,
		GlobalAdmin: id.GlobalAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
