package service

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/realmkeys/internal/application"
	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	domainservice "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/internal/infrastructure/audit"
	"github.com/turtacn/realmkeys/internal/infrastructure/auth"
	"github.com/turtacn/realmkeys/internal/infrastructure/keyprovider"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/memory"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/logger"
)

const (
	testRealm    = "acme"
	testUser     = "alice"
	testPassword = "s3cret-pass"
	testIssuer   = "http://localhost:8080"
)

type stack struct {
	kms      *application.KeyManagementService
	sessions *memory.SessionStore
	tokens   TokenAppService
	browser  SessionAppService
	signer   *domainservice.JWTSigner
	claims   *domainservice.ClaimsPolicy
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := logger.NewNoopLogger()

	providers, err := keyprovider.NewDefaultProviderSet(64, nil)
	require.NoError(t, err)
	store := memory.NewKeyRepository()
	registry := domainservice.NewKeyRegistry(store, providers, log, nil)
	keys := repository.NewNotifyingKeyRepository(store, registry)

	signer := domainservice.NewJWTSigner(registry, log, nil)
	verifier := domainservice.NewJWTVerifier(registry, log, nil)
	claims := domainservice.NewClaimsPolicy(testIssuer, constants.ClockSkewTolerance)
	cookies := domainservice.NewCookieRefreshPolicy(registry, verifier, signer, claims, log, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authenticator, err := auth.NewStaticAuthenticator([]config.UserConfig{
		{Tenant: testRealm, Username: testUser, PasswordHash: string(hash), Email: "alice@example.com"},
	})
	require.NoError(t, err)

	sessions := memory.NewSessionStore(0)
	settings := TokenSettings{Algorithm: constants.AlgorithmRS256}

	return &stack{
		kms:      application.NewKeyManagementService(providers, keys, registry, audit.NewMemoryRegistry(), nil, log),
		sessions: sessions,
		tokens:   NewTokenAppService(authenticator, sessions, signer, verifier, claims, settings, nil, log),
		browser:  NewSessionAppService(authenticator, sessions, signer, verifier, cookies, claims, settings, log),
		signer:   signer,
		claims:   claims,
	}
}

func (s *stack) createKey(t *testing.T, priority int64) string {
	t.Helper()
	kid, err := s.kms.CreateKey(context.Background(), testRealm, &dto.CreateKeyRequest{
		ProviderID: string(constants.ProviderRSAGenerated),
		Priority:   &priority,
	})
	require.NoError(t, err)
	return kid
}

func (s *stack) deleteKey(t *testing.T, kid string) {
	t.Helper()
	require.NoError(t, s.kms.DeleteKey(context.Background(), testRealm, kid))
}

func (s *stack) passwordGrant(t *testing.T) *dto.TokenResponse {
	t.Helper()
	resp, err := s.tokens.Token(context.Background(), testRealm, &dto.TokenRequest{
		GrantType: "password",
		Username:  testUser,
		Password:  testPassword,
	})
	require.NoError(t, err)
	return resp
}

// kidOf returns the kid header of a compact JWS without verifying it.
func kidOf(t *testing.T, token string) string {
	t.Helper()
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &models.TokenClaims{})
	require.NoError(t, err)
	kid, _ := parsed.Header["kid"].(string)
	return kid
}
