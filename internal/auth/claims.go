package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is set on every token this service mints.
const Issuer = "clagehs"

// Claims extends JWT standard claims with the caller's role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateToken creates a signed JWT for subject.
//
// Parameters:
//   - subject: Who the token is for, e.g. "home-assistant"
//   - role: Role to grant
//   - secret: Shared HS256 secret from the API config
//   - ttl: Lifetime; zero mints a token that never expires
//
// Returns:
//   - string: Signed token
//   - error: ErrInvalidRole, or a signing failure
func GenerateToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return "", err
	}
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrTokenInvalid)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
		Role: role,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a token, returning its claims.
// It checks the signature, expiry, issuer and role.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	return claims, nil
}
