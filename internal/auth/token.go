// ABOUTME: JWT access tokens for the record store API
// ABOUTME: HS256 tokens carrying the user id as subject, minted and verified with a shared secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// tokenIssuer marks tokens minted by this service.
const tokenIssuer = "session-core"

// sessionClaims is the claim set on record store access tokens. The subject
// is the user id that conversation ownership is scoped to.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

// JWTVerifier mints and verifies HS256 signed session tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier using the given shared secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify checks the token signature and expiry and returns the user id from
// the subject claim.
func (v *JWTVerifier) Verify(tokenString string) (userID string, err error) {
	var claims sessionClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// Generate mints a token for the given user id, valid for expiresIn.
func (v *JWTVerifier) Generate(userID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
