package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

func newTestAuthService(t *testing.T, password string) *AuthService {
	t.Helper()
	hash := ""
	if password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(raw)
	}
	return NewAuthService(nil, nil, AuthConfig{
		PasswordHash:      hash,
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "campus-portal",
	})
}

func TestAuthServiceLoginIssuesAdminToken(t *testing.T) {
	svc := newTestAuthService(t, "s3cret")

	resp, err := svc.Login(context.Background(), models.AdminLoginRequest{Password: "s3cret", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.SessionID)
	assert.Equal(t, "admin", claims.Subject)
}

func TestAuthServiceRejectsWrongPassword(t *testing.T) {
	svc := newTestAuthService(t, "s3cret")

	_, err := svc.Login(context.Background(), models.AdminLoginRequest{Password: "guess"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)

	_, err = svc.Login(context.Background(), models.AdminLoginRequest{})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAuthServiceDisabledWithoutHash(t *testing.T) {
	svc := newTestAuthService(t, "")
	assert.False(t, svc.Enabled())

	_, err := svc.Login(context.Background(), models.AdminLoginRequest{Password: "anything"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrFeatureDisabled.Code, appErr.Code)
}

func TestAuthServiceTokenExpires(t *testing.T) {
	svc := newTestAuthService(t, "s3cret")
	base := time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	resp, err := svc.Login(context.Background(), models.AdminLoginRequest{Password: "s3cret"})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceRejectsForeignToken(t *testing.T) {
	svc := newTestAuthService(t, "s3cret")
	other := NewAuthService(nil, nil, AuthConfig{PasswordHash: svc.config.PasswordHash, AccessTokenSecret: "other", Issuer: "campus-portal"})

	resp, err := other.Login(context.Background(), models.AdminLoginRequest{Password: "s3cret"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pa55")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pa55")))

	_, err = HashPassword("")
	assert.Error(t, err)
}
