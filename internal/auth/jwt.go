// Package auth is the identity provider: password accounts, signed session
// tokens and token revocation.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "huddle"

// Claims is the payload of a session token.
//
// RegisteredClaims.ID (jti) is a fresh uuid per token. Revocation stores
// the jti, not the token, so logging out one device leaves tokens issued
// to the user's other devices valid.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for userID valid for ttl from now.
//
// It returns the claims alongside the signed string so callers can report
// ExpiresAt without parsing their own token back.
//
// Why HS256?
//   - The server both issues and verifies tokens; nothing else needs to
//     verify them, so a shared secret is enough.
//   - Moving to RS256 only touches this file and ParseToken.
//
// now is passed in rather than read from the clock so tests can mint tokens
// that are already expired.
func GenerateToken(userID uuid.UUID, email, secret string, ttl time.Duration, now time.Time) (string, *Claims, error) {
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken verifies a token and returns its claims.
//
// It checks:
//  1. The signature matches secret, and the method is HMAC. A token that
//     names "none" or an RSA method is rejected before the key is used.
//  2. ExpiresAt is present and after now().
//  3. The issuer is ours.
//  4. The jti and user id are set, since revocation and lookups need both.
func ParseToken(tokenString, secret string, now func() time.Time) (*Claims, error) {
	if now == nil {
		now = time.Now
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.ID == "" || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token missing subject or id")
	}
	return claims, nil
}
