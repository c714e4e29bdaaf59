package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTOR
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, expires, err := ts.Generate("user-123", "alice@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Generate() token doesn't look like a JWT: %q", token)
	}

	// Default lifetime is an hour, give or take the second truncation.
	if d := time.Until(expires); d < 59*time.Minute || d > time.Hour {
		t.Errorf("Generate() expiry in %v, want about 1h", d)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, _, err := ts.Generate("user-abc-123", "alice@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	c, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.Subject != "user-abc-123" {
		t.Errorf("Subject = %q, want %q", c.Subject, "user-abc-123")
	}
	if c.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", c.Email, "alice@example.com")
	}
	if c.Role != "authenticated" {
		t.Errorf("Role = %q, want authenticated", c.Role)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _, err := ts.GenerateWithDuration("user-123", "", -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	_, err = ts.Validate(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	good, _, _ := ts.Generate("user-123", "")
	foreign, _, _ := other.Generate("user-123", "")

	cases := []struct {
		name  string
		token string
	}{
		{"tampered", good[:len(good)-3] + "xxx"},
		{"different secret", foreign},
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ts.Validate(tc.token); err == nil {
				t.Fatalf("Validate(%s) should fail", tc.name)
			}
		})
	}
}
