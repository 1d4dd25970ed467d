package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
)

func (f *fixture) identityCookie(t *testing.T, tenantID string, alg constants.JWTAlgorithm, ttl time.Duration) *models.SignedArtifact {
	t.Helper()
	cookie, err := f.signer.Sign(context.Background(), tenantID, alg, f.tokenClaims(tenantID, constants.TokenTypeIdentityCookie, ttl))
	require.NoError(t, err)
	return cookie
}

func TestCookieRefreshPolicy_Rotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k1 := f.addKey(t, "test", 1000)
	cookie := f.identityCookie(t, "test", constants.AlgorithmRS256, time.Hour)
	require.Equal(t, k1, cookie.KeyID)

	decision, err := f.cookies.Evaluate(ctx, "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieKeep, decision.Action)
	assert.Nil(t, decision.Refreshed)

	// A new active key: the cookie is accepted and silently re-signed.
	k2 := f.addKey(t, "test", 2000)
	decision, err = f.cookies.Evaluate(ctx, "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	require.Equal(t, models.CookieRefresh, decision.Action)
	require.NotNil(t, decision.Refreshed)
	assert.Equal(t, k2, decision.Refreshed.KeyID)
	assert.Equal(t, "session-1", decision.Claims.SessionID)
	cookie = decision.Refreshed

	// The old key goes away; the cookie is already on k2.
	f.removeKey(t, "test", k1)
	decision, err = f.cookies.Evaluate(ctx, "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieKeep, decision.Action)
	assert.Equal(t, "session-1", decision.Claims.SessionID)

	// The cookie's key is removed: the session is gone.
	f.removeKey(t, "test", k2)
	decision, err = f.cookies.Evaluate(ctx, "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieReject, decision.Action)
	assert.Equal(t, models.ReasonUnknownKey, decision.Verification.Reason)
	assert.Nil(t, decision.Claims)
}

func TestCookieRefreshPolicy_RefreshedCookieVerifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addKey(t, "test", 1000)
	cookie := f.identityCookie(t, "test", constants.AlgorithmRS256, time.Hour)
	k2 := f.addKey(t, "test", 2000)

	decision, err := f.cookies.Evaluate(ctx, "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	require.Equal(t, models.CookieRefresh, decision.Action)

	claims := &models.TokenClaims{}
	result := f.verifier.Verify(ctx, "test", decision.Refreshed.Token, claims)
	require.True(t, result.Valid)
	assert.Equal(t, k2, result.KeyID)
	assert.Equal(t, constants.TokenTypeIdentityCookie, claims.Type)
	assert.Equal(t, "alice", claims.PreferredUsername)
}

func TestCookieRefreshPolicy_RejectsExpiredCookie(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "test", 1000)
	cookie := f.identityCookie(t, "test", constants.AlgorithmRS256, -time.Hour)

	decision, err := f.cookies.Evaluate(context.Background(), "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieReject, decision.Action)
}

func TestCookieRefreshPolicy_RejectsOtherArtifactTypes(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "test", 1000)
	access, err := f.signer.Sign(context.Background(), "test", constants.AlgorithmRS256, f.tokenClaims("test", constants.TokenTypeAccess, time.Hour))
	require.NoError(t, err)

	decision, err := f.cookies.Evaluate(context.Background(), "test", constants.AlgorithmRS256, access.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieReject, decision.Action)
}

func TestCookieRefreshPolicy_RejectsGarbage(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "test", 1000)

	decision, err := f.cookies.Evaluate(context.Background(), "test", constants.AlgorithmRS256, "garbage")
	require.NoError(t, err)
	assert.Equal(t, models.CookieReject, decision.Action)
	assert.Equal(t, models.ReasonMalformedHeader, decision.Verification.Reason)
}

func TestCookieRefreshPolicy_KeepsWhenNoActiveKeyForAlgorithm(t *testing.T) {
	f := newFixture(t)
	f.addKey(t, "test", 1000, withECDSA())
	cookie := f.identityCookie(t, "test", constants.AlgorithmES256, time.Hour)

	decision, err := f.cookies.Evaluate(context.Background(), "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieKeep, decision.Action)
	assert.True(t, decision.Verification.Valid)
}

func TestCookieRefreshPolicy_KeepsWhenActiveKeyIsVerifyOnlySuperseded(t *testing.T) {
	f := newFixture(t)
	k1 := f.addKey(t, "test", 1000)
	cookie := f.identityCookie(t, "test", constants.AlgorithmRS256, time.Hour)

	// A verify-only key never becomes active, so there is nothing to refresh to.
	f.addKey(t, "test", 5000, verifyOnly())
	decision, err := f.cookies.Evaluate(context.Background(), "test", constants.AlgorithmRS256, cookie.Token)
	require.NoError(t, err)
	assert.Equal(t, models.CookieKeep, decision.Action)
	assert.Equal(t, k1, decision.Verification.KeyID)
}

func TestClaimsPolicy_Validate(t *testing.T) {
	f := newFixture(t)

	claims := f.tokenClaims("test", constants.TokenTypeAccess, time.Minute)
	assert.NoError(t, f.claims.Validate("test", claims, constants.TokenTypeAccess))
	assert.Error(t, f.claims.Validate("test", claims, constants.TokenTypeRefresh))
	assert.Error(t, f.claims.Validate("other", claims, constants.TokenTypeAccess))

	claims.ExpiresAt = nil
	assert.Error(t, f.claims.Validate("test", claims, constants.TokenTypeAccess))
	assert.Equal(t, testIssuerBase+"/realms/test", f.claims.Issuer("test"))
}
