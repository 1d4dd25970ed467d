package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
)

func refresh(s *stack, refreshToken string) (*dto.TokenResponse, error) {
	return s.tokens.Token(context.Background(), testRealm, &dto.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}

func Test_TokenAppService_PasswordGrant(t *testing.T) {
	s := newStack(t)
	kid := s.createKey(t, 100)

	resp := s.passwordGrant(t)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(constants.AccessTokenDefaultTTL.Seconds()), resp.ExpiresIn)
	assert.Equal(t, int64(constants.RefreshTokenDefaultTTL.Seconds()), resp.RefreshExpiresIn)
	assert.NotEmpty(t, resp.SessionState)
	for _, token := range []string{resp.AccessToken, resp.RefreshToken, resp.IDToken} {
		assert.Equal(t, kid, kidOf(t, token))
	}

	info, err := s.tokens.UserInfo(context.Background(), testRealm, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUser, info.PreferredUsername)
	assert.Equal(t, "alice@example.com", info.Email)
	assert.NotEmpty(t, info.Subject)
}

func Test_TokenAppService_PasswordGrant_Errors(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.tokens.Token(ctx, testRealm, &dto.TokenRequest{GrantType: "password", Username: testUser, Password: "wrong"})
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidGrant, cbcErr.Code())
	assert.Equal(t, 401, cbcErr.HTTPStatus())

	_, err = s.tokens.Token(ctx, testRealm, &dto.TokenRequest{GrantType: "client_credentials"})
	cbcErr, ok = errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnsupportedGrantType, cbcErr.Code())

	_, err = s.tokens.Token(ctx, testRealm, &dto.TokenRequest{GrantType: "password", Username: testUser})
	cbcErr, ok = errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidRequest, cbcErr.Code())

	// Credentials are fine but the realm has no key to sign with.
	_, err = s.tokens.Token(ctx, testRealm, &dto.TokenRequest{GrantType: "password", Username: testUser, Password: testPassword})
	assert.ErrorIs(t, err, errors.ErrNoActiveKey)
}

// Refresh keeps working across a rotation, fails once every key that signed the
// session's tokens is gone, and userinfo and introspection follow suit.
func Test_TokenAppService_RotationLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	k1 := s.createKey(t, 1000)
	t1 := s.passwordGrant(t)
	require.Equal(t, k1, kidOf(t, t1.AccessToken))

	k2 := s.createKey(t, 2000)
	t2, err := refresh(s, t1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, k2, kidOf(t, t2.AccessToken))
	assert.Equal(t, k2, kidOf(t, t2.RefreshToken))
	assert.Equal(t, k2, kidOf(t, t2.IDToken))
	assert.Equal(t, t1.SessionState, t2.SessionState)

	s.deleteKey(t, k1)
	t3, err := refresh(s, t2.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, k2, kidOf(t, t3.AccessToken))
	assert.Equal(t, k2, kidOf(t, t3.RefreshToken))

	// The K1 refresh token is gone with its key.
	_, err = refresh(s, t1.RefreshToken)
	require.Error(t, err)

	introspected, err := s.tokens.Introspect(ctx, testRealm, &dto.IntrospectRequest{Token: t3.AccessToken})
	require.NoError(t, err)
	assert.True(t, introspected.Active)
	assert.Equal(t, string(constants.TokenTypeAccess), introspected.Type)

	s.deleteKey(t, k2)

	_, err = refresh(s, t3.RefreshToken)
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidGrant, cbcErr.Code())
	assert.Equal(t, "Invalid refresh token", cbcErr.Description())
	assert.Equal(t, 400, cbcErr.HTTPStatus())

	_, err = s.tokens.UserInfo(ctx, testRealm, t3.AccessToken)
	cbcErr, ok = errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidToken, cbcErr.Code())
	assert.Equal(t, 401, cbcErr.HTTPStatus())

	introspected, err = s.tokens.Introspect(ctx, testRealm, &dto.IntrospectRequest{Token: t3.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, &dto.IntrospectResponse{Active: false}, introspected)
}

func Test_TokenAppService_RefreshRequiresRefreshToken(t *testing.T) {
	s := newStack(t)
	s.createKey(t, 100)
	resp := s.passwordGrant(t)

	_, err := refresh(s, resp.AccessToken)
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidGrant, cbcErr.Code())

	_, err = s.tokens.UserInfo(context.Background(), testRealm, resp.RefreshToken)
	assert.Error(t, err)
}

func Test_TokenAppService_RefreshAfterSessionEnds(t *testing.T) {
	s := newStack(t)
	s.createKey(t, 100)
	resp := s.passwordGrant(t)

	require.NoError(t, s.sessions.Delete(context.Background(), testRealm, resp.SessionState))

	_, err := refresh(s, resp.RefreshToken)
	cbcErr, ok := errors.AsCBCError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidGrant, cbcErr.Code())

	introspected, err := s.tokens.Introspect(context.Background(), testRealm, &dto.IntrospectRequest{Token: resp.AccessToken})
	require.NoError(t, err)
	assert.False(t, introspected.Active)
}

func Test_TokenAppService_RejectsExpiredAndForeignTokens(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.createKey(t, 100)
	resp := s.passwordGrant(t)

	now := time.Now()
	expired := &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.claims.Issuer(testRealm),
			Subject:   "someone",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		Type:      constants.TokenTypeAccess,
		SessionID: resp.SessionState,
	}
	signed, err := s.signer.Sign(ctx, testRealm, constants.AlgorithmRS256, expired)
	require.NoError(t, err)

	_, err = s.tokens.UserInfo(ctx, testRealm, signed.Token)
	assert.Error(t, err)
	introspected, err := s.tokens.Introspect(ctx, testRealm, &dto.IntrospectRequest{Token: signed.Token})
	require.NoError(t, err)
	assert.False(t, introspected.Active)

	// Tokens of one realm never verify in another.
	_, err = s.tokens.UserInfo(ctx, "other-realm", resp.AccessToken)
	assert.Error(t, err)

	introspected, err = s.tokens.Introspect(ctx, testRealm, &dto.IntrospectRequest{Token: "not-a-jwt"})
	require.NoError(t, err)
	assert.False(t, introspected.Active)
}
