package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farhanpavel/cognit-api/internal/models"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "cognit", Audience: []string{"mobile"}})

	token, err := svc.IssueToken("user-1", models.RoleDonor, "Karim", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleDonor, claims.Role)
	assert.Equal(t, models.Actor{UserID: "user-1", Role: models.RoleDonor}, claims.Actor())
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})

	other := NewTokenService(TokenConfig{Secret: "other"})
	forged, err := other.IssueToken("user-1", models.RolePatient, "", time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired, err := svc.IssueToken("user-1", models.RolePatient, "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "user-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenServiceEnforcesIssuer(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "someone-else"})
	token, err := issuer.IssueToken("user-1", models.RoleDonor, "", time.Minute)
	require.NoError(t, err)

	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "cognit"})
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenServiceRequiresSubject(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	token, err := svc.IssueToken("", models.RoleDonor, "", time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
