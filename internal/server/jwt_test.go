package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/doc-feedback/internal/config"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(config.AuthConfig{Secret: testSecret, ExpirationHours: 24})
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_Validation(t *testing.T) {
	_, err := NewJWTService(config.AuthConfig{ExpirationHours: 24})
	assert.Error(t, err)

	_, err = NewJWTService(config.AuthConfig{Secret: testSecret})
	assert.Error(t, err)
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newTestJWTService(t)
	userID := uuid.New()

	token, expiresAt, err := svc.GenerateToken(userID)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID, claims.GetUserID())
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	svc := newTestJWTService(t)
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, _, err := svc.GenerateToken(uuid.New())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTService_RejectsOtherSecret(t *testing.T) {
	token, _, err := newTestJWTService(t).GenerateToken(uuid.New())
	require.NoError(t, err)

	other, err := NewJWTService(config.AuthConfig{Secret: "another-secret", ExpirationHours: 1})
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	svc := newTestJWTService(t)
	now := time.Now()

	tests := []struct {
		name   string
		method jwt.SigningMethod
		claims *Claims
	}{
		{"wrong issuer", jwt.SigningMethodHS256, &Claims{UserID: uuid.New(), RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}},
		{"missing user", jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}},
		{"other algorithm", jwt.SigningMethodHS512, &Claims{UserID: uuid.New(), RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(tt.method, tt.claims).SignedString([]byte(testSecret))
			require.NoError(t, err)
			_, err = svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}

	_, err := svc.ValidateToken("")
	assert.Error(t, err)
	_, err = svc.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
