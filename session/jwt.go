// Package session mints and validates JWT session tokens (spec.md §4.5): an
// in-memory cache backed by a repo.SessionRepository, with mint, validate,
// refresh, terminate, and periodic-cleanup operations. The cache/cleanup
// shape is adapted from the teacher's token-reuse cache and cleanupLoop in
// tunnel/server/server.go.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the fixed JWT "iss" claim, per spec.md §4.5.
const Issuer = "chatv2-server"

// ErrBadSignature/ErrExpired/ErrBadIssuer classify token validation
// failures below the session-lookup layer.
var (
	ErrBadSignature = errors.New("session: bad token signature")
	ErrExpired      = errors.New("session: token expired")
	ErrBadIssuer    = errors.New("session: unexpected issuer")
	ErrMalformed    = errors.New("session: malformed token")
)

// Claims is the JWT claim set minted for every session.
type Claims struct {
	jwt.RegisteredClaims
}

// MintToken signs a new JWT for userID, valid for ttl starting at now.
func MintToken(secret []byte, userID uuid.UUID, jti string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken verifies signature, issuer, and expiry, returning the subject
// user ID on success.
func ParseToken(secret []byte, tokenString string) (uuid.UUID, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrExpired
		}
		return uuid.Nil, ErrMalformed
	}
	if !token.Valid {
		return uuid.Nil, ErrMalformed
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrMalformed
	}
	return userID, nil
}
