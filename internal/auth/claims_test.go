package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("home-assistant", RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "home-assistant" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "home-assistant")
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if claims.ExpiresAt == nil {
		t.Error("ExpiresAt should be set for a positive TTL")
	}
}

func TestGenerateToken_NoExpiry(t *testing.T) {
	token, err := GenerateToken("dashboard", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", claims.ExpiresAt)
	}
}

func TestGenerateToken_Invalid(t *testing.T) {
	if _, err := GenerateToken("x", Role("owner"), testSecret, 0); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("GenerateToken() bad role error = %v, want ErrInvalidRole", err)
	}
	if _, err := GenerateToken("", RoleAdmin, testSecret, 0); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("GenerateToken() empty subject error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("home-assistant", RoleAdmin, "correct-secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := ParseToken(token, "wrong-secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, err := ParseToken("not-a-valid-jwt", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

// signClaims mints a token with arbitrary claims for negative cases.
func signClaims(t *testing.T, claims Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func TestParseToken_Rejects(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name   string
		claims Claims
	}{
		{
			name: "expired",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "ha", ExpiresAt: jwt.NewNumericDate(past)},
				Role:             RoleAdmin,
			},
		},
		{
			name: "foreign issuer",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", Subject: "ha"},
				Role:             RoleAdmin,
			},
		},
		{
			name: "missing subject",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
				Role:             RoleAdmin,
			},
		},
		{
			name: "unknown role",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "ha"},
				Role:             Role("owner"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signClaims(t, tt.claims, jwt.SigningMethodHS256, []byte(testSecret))
			if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "ha"},
		Role:             RoleAdmin,
	}
	token := signClaims(t, claims, jwt.SigningMethodHS512, []byte(testSecret))
	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() HS512 error = %v, want ErrTokenInvalid", err)
	}
}
