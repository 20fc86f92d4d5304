package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

const testClinic = "6f1c2a4e-8a4b-4f7d-9c1e-3b2a1d0e9f88"

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "clinic-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ClinicID: testClinic,
		Roles:    []string{RoleReceptionist},
	}
}

type captured struct {
	clinicID string
	userID   string
	roles    []string
}

func run(t *testing.T, mw echo.MiddlewareFunc, header string) (captured, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var got captured
	err := mw(func(c echo.Context) error {
		got.clinicID, _ = c.Get("jwt_clinic_id").(string)
		got.userID = UserIDFromContext(c.Request().Context())
		got.roles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})(c)
	return got, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	got, err := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "clinic-auth"}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.clinicID != testClinic {
		t.Errorf("expected clinic %s, got %s", testClinic, got.clinicID)
	}
	if got.userID != "user-1" {
		t.Errorf("expected user-1, got %s", got.userID)
	}
	if len(got.roles) != 1 || got.roles[0] != RoleReceptionist {
		t.Errorf("unexpected roles %v", got.roles)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Claims)
		key    []byte
	}{
		{"wrong key", func(c *Claims) {}, []byte("another-key")},
		{"expired", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }, testSigningKey},
		{"no expiry", func(c *Claims) { c.ExpiresAt = nil }, testSigningKey},
		{"wrong issuer", func(c *Claims) { c.Issuer = "someone-else" }, testSigningKey},
		{"no clinic", func(c *Claims) { c.ClinicID = "" }, testSigningKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(&claims)
			token := createTestToken(t, claims, tt.key)
			_, err := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "clinic-auth"}), "Bearer "+token)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestDevAuthMiddleware_DefaultsWithoutHeader(t *testing.T) {
	got, err := run(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, testClinic), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.clinicID != testClinic || got.userID != "dev-user" {
		t.Errorf("unexpected identity %+v", got)
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	_, err := run(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, testClinic), "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)

	other := "0b7d5c1e-0000-4000-8000-000000000002"
	claims := validClaims()
	claims.ClinicID = other
	token := createTestToken(t, claims, testSigningKey)
	got, err := run(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, testClinic), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.clinicID != other {
		t.Errorf("expected token clinic to win, got %s", got.clinicID)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	if UserIDFromContext(context.Background()) != "" {
		t.Error("expected empty user id")
	}
	if RolesFromContext(context.Background()) != nil {
		t.Error("expected nil roles")
	}
}
