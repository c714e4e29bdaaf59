// Package auth holds the credential primitives of the embedded backend:
// signed access tokens, password hashing, and the OAuth identity providers.
//
// ACCESS TOKENS:
// An access token is a short-lived HS256 JWT. Its subject is the identity id,
// and it also carries the email so GetUser-style lookups can be logged
// without a query. Refresh tokens are NOT JWTs: they are opaque random values
// stored server-side so they can be revoked on sign-out.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<identity id>","email":"…","role":"authenticated","exp":…}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "hackhub"

	// DefaultAccessTTL matches the managed backend's default JWT expiry.
	DefaultAccessTTL = time.Hour

	roleAuthenticated = "authenticated"
)

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies access tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: DefaultAccessTTL}, nil
}

// Claims is the access token payload.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Generate signs an access token for the identity with the default lifetime.
// It returns the token and the moment it stops being valid.
func (s *TokenService) Generate(identityID, email string) (string, time.Time, error) {
	return s.GenerateWithDuration(identityID, email, s.ttl)
}

// GenerateWithDuration is Generate with an explicit lifetime. A negative
// duration yields an already expired token, which tests use.
func (s *TokenService) GenerateWithDuration(identityID, email string, d time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(d)

	c := Claims{
		Email: email,
		Role:  roleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	// The exp claim has second precision; report what the token says.
	return signed, c.ExpiresAt.Time, nil
}

// Validate verifies the signature, issuer and expiry of tokenStr and returns
// its claims.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return c, nil
}
