package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/realmkeys/internal/application"
	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/application/service"
	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	domainservice "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/internal/infrastructure/audit"
	"github.com/turtacn/realmkeys/internal/infrastructure/auth"
	"github.com/turtacn/realmkeys/internal/infrastructure/keyprovider"
	"github.com/turtacn/realmkeys/internal/infrastructure/monitoring"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/memory"
	"github.com/turtacn/realmkeys/internal/infrastructure/ratelimit"
	"github.com/turtacn/realmkeys/internal/interfaces/http/handlers"
	"github.com/turtacn/realmkeys/internal/interfaces/http/middleware"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/logger"
)

const (
	realm      = "acme"
	username   = "alice"
	password   = "s3cret-pass"
	adminToken = "admin-secret"
)

type testServer struct {
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLimiter(t, nil)
}

func newTestServerWithLimiter(t *testing.T, limiter domainservice.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNoopLogger()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	providers, err := keyprovider.NewDefaultProviderSet(64, metrics)
	require.NoError(t, err)
	store := memory.NewKeyRepository()
	registry := domainservice.NewKeyRegistry(store, providers, log, metrics)
	keys := repository.NewNotifyingKeyRepository(store, registry)

	signer := domainservice.NewJWTSigner(registry, log, metrics)
	verifier := domainservice.NewJWTVerifier(registry, log, metrics)
	claims := domainservice.NewClaimsPolicy("http://localhost:8080", constants.ClockSkewTolerance)
	cookies := domainservice.NewCookieRefreshPolicy(registry, verifier, signer, claims, log, metrics)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	authenticator, err := auth.NewStaticAuthenticator([]config.UserConfig{
		{Tenant: realm, Username: username, PasswordHash: string(hash), Email: "alice@example.com"},
	})
	require.NoError(t, err)

	sessions := memory.NewSessionStore(0)
	settings := service.TokenSettings{Algorithm: constants.AlgorithmRS256}
	tokenService := service.NewTokenAppService(authenticator, sessions, signer, verifier, claims, settings, metrics, log)
	sessionService := service.NewSessionAppService(authenticator, sessions, signer, verifier, cookies, claims, settings, log)
	kms := application.NewKeyManagementService(providers, keys, registry, audit.NewMemoryRegistry(), metrics, log)

	serverCfg := &config.ServerConfig{AdminToken: adminToken}
	router := NewRouter(serverCfg, log, Handlers{
		Health:   handlers.NewHealthHandler(nil, log),
		Keys:     handlers.NewKeyHandler(kms, log),
		OIDC:     handlers.NewOIDCHandler(tokenService, log),
		Sessions: handlers.NewSessionHandler(sessionService, middleware.CookieSettings{}, log),
	}, sessionService, metrics, nil, limiter)

	return &testServer{engine: router.Engine()}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, "/admin/realms/"+realm+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	return s.do(req)
}

func (s *testServer) createKey(t *testing.T, priority int64) string {
	t.Helper()
	w := s.admin(http.MethodPost, "/keys", dto.CreateKeyRequest{ProviderID: "rsa-generated", Priority: &priority})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp dto.CreateKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, "/admin/realms/"+realm+"/keys/"+resp.ID, w.Header().Get("Location"))
	return resp.ID
}

func (s *testServer) deleteKey(t *testing.T, kid string) {
	t.Helper()
	w := s.admin(http.MethodDelete, "/keys/"+kid, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func (s *testServer) form(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *testServer) token(values url.Values) *httptest.ResponseRecorder {
	return s.form("/realms/"+realm+"/protocol/openid-connect/token", values)
}

func (s *testServer) passwordGrant(t *testing.T) dto.TokenResponse {
	t.Helper()
	w := s.token(url.Values{"grant_type": {"password"}, "username": {username}, "password": {password}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) userInfo(accessToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/realms/"+realm+"/protocol/openid-connect/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return s.do(req)
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(dto.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/realms/"+realm+"/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookie := identityCookie(w)
	require.NotNil(t, cookie)
	return cookie
}

func (s *testServer) account(cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/realms/"+realm+"/account", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return s.do(req)
}

func identityCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == constants.IdentityCookieName {
			return c
		}
	}
	return nil
}

func kidOf(t *testing.T, token string) string {
	t.Helper()
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &models.TokenClaims{})
	require.NoError(t, err)
	kid, _ := parsed.Header["kid"].(string)
	return kid
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderRequestID))

	w = s.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(constants.HeaderRequestID, "req-123")
	w := s.do(req)
	assert.Equal(t, "req-123", w.Header().Get(constants.HeaderRequestID))
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error)
}

func TestRouter_AdminAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/realms/"+realm+"/keys", nil)
	w := s.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	req = httptest.NewRequest(http.MethodGet, "/admin/realms/"+realm+"/keys", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = s.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.admin(http.MethodGet, "/keys", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CreateKeyValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.admin(http.MethodPost, "/keys", map[string]interface{}{"provider_id": "hsm"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Error)

	w = s.admin(http.MethodPost, "/keys", map[string]interface{}{"provider_id": "rsa"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodDelete, "/keys/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// The active key follows priority, the certs endpoint publishes every enabled key.
func TestRouter_KeyListingAndCerts(t *testing.T) {
	s := newTestServer(t)
	low := s.createKey(t, 10)
	high := s.createKey(t, 100)
	disabledPriority := int64(1000)
	w := s.admin(http.MethodPost, "/keys", dto.CreateKeyRequest{ProviderID: "rsa-generated", Priority: &disabledPriority, Disabled: true})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.admin(http.MethodGet, "/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed dto.KeysMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, high, listed.Active[string(constants.AlgorithmRS256)])
	require.Len(t, listed.Keys, 3)
	for _, k := range listed.Keys {
		assert.NotContains(t, k.PublicKeyPEM, "PRIVATE")
	}

	w = s.admin(http.MethodGet, "/keys/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), high)

	w = s.do(httptest.NewRequest(http.MethodGet, "/realms/"+realm+"/protocol/openid-connect/certs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var set struct {
		Keys []struct {
			Kid string `json:"kid"`
			Use string `json:"use"`
			D   string `json:"d"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	kids := make([]string, 0, len(set.Keys))
	for _, k := range set.Keys {
		kids = append(kids, k.Kid)
		assert.Equal(t, "sig", k.Use)
		assert.Empty(t, k.D)
	}
	assert.ElementsMatch(t, []string{low, high}, kids)
}

// A refresh after rotation moves the session to the new key,
// and removing the old key invalidates what it signed.
func TestRouter_TokenRotation(t *testing.T) {
	s := newTestServer(t)
	k1 := s.createKey(t, 100)

	first := s.passwordGrant(t)
	assert.Equal(t, k1, kidOf(t, first.AccessToken))
	assert.Equal(t, "no-store", s.token(url.Values{"grant_type": {"password"}, "username": {username}, "password": {password}}).Header().Get("Cache-Control"))

	w := s.userInfo(first.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info dto.UserInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, username, info.PreferredUsername)

	k2 := s.createKey(t, 200)
	w = s.userInfo(first.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code, "tokens of a passive key stay valid")

	w = s.token(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {first.RefreshToken}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed dto.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.Equal(t, k2, kidOf(t, refreshed.AccessToken))
	assert.Equal(t, k2, kidOf(t, refreshed.RefreshToken))

	s.deleteKey(t, k1)

	w = s.userInfo(first.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
	errResp := decodeError(t, w)
	assert.Equal(t, "invalid_token", errResp.Error)
	assert.NotContains(t, errResp.ErrorDescription, "unknown")

	w = s.token(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {first.RefreshToken}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_grant", decodeError(t, w).Error)

	w = s.userInfo(refreshed.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_TokenErrors(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, 100)

	w := s.token(url.Values{"grant_type": {"client_credentials"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.token(url.Values{"grant_type": {"password"}, "username": {username}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_grant", decodeError(t, w).Error)

	req := httptest.NewRequest(http.MethodGet, "/realms/"+realm+"/protocol/openid-connect/userinfo", nil)
	w = s.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.userInfo("not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_token", decodeError(t, w).Error)
}

func TestRouter_NoActiveKey(t *testing.T) {
	s := newTestServer(t)
	w := s.token(url.Values{"grant_type": {"password"}, "username": {username}, "password": {password}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_error", decodeError(t, w).Error)
}

func TestRouter_Introspect(t *testing.T) {
	s := newTestServer(t)
	k1 := s.createKey(t, 100)
	tokens := s.passwordGrant(t)

	w := s.form("/realms/"+realm+"/protocol/openid-connect/token/introspect", url.Values{"token": {tokens.AccessToken}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.IntrospectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	assert.Equal(t, username, resp.Username)

	s.deleteKey(t, k1)
	w = s.form("/realms/"+realm+"/protocol/openid-connect/token/introspect", url.Values{"token": {tokens.AccessToken}})
	require.Equal(t, http.StatusOK, w.Code)
	resp = dto.IntrospectResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Active)

	w = s.form("/realms/"+realm+"/protocol/openid-connect/token/introspect", url.Values{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// The identity cookie is re-signed with the new active key
// and rejected once its signing key is removed.
func TestRouter_IdentityCookieRotation(t *testing.T) {
	s := newTestServer(t)
	k1 := s.createKey(t, 100)

	cookie := s.login(t)
	assert.Equal(t, k1, kidOf(t, cookie.Value))
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/realms/"+realm+"/", cookie.Path)

	w := s.account(cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, identityCookie(w), "cookie signed by the active key is kept")

	k2 := s.createKey(t, 200)
	w = s.account(cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := identityCookie(w)
	require.NotNil(t, refreshed)
	assert.Equal(t, k2, kidOf(t, refreshed.Value))

	var account dto.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, username, account.Username)

	s.deleteKey(t, k1)
	w = s.account(cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "login_required", decodeError(t, w).Error)
	cleared := identityCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	w = s.account(refreshed)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AccountWithoutCookie(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, 100)
	w := s.account(nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "login_required", decodeError(t, w).Error)
}

func TestRouter_Logout(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, 100)
	cookie := s.login(t)

	req := httptest.NewRequest(http.MethodPost, "/realms/"+realm+"/logout", nil)
	req.AddCookie(cookie)
	w := s.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.account(cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_CertsETag(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, 100)
	certs := "/realms/" + realm + "/protocol/openid-connect/certs"

	w := s.do(httptest.NewRequest(http.MethodGet, certs, nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, certs, nil)
	req.Header.Set("If-None-Match", etag)
	w = s.do(req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	s.createKey(t, 200)
	req = httptest.NewRequest(http.MethodGet, certs, nil)
	req.Header.Set("If-None-Match", etag)
	w = s.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServerWithLimiter(t, ratelimit.NewMemoryRateLimiter(2, time.Minute))
	s.createKey(t, 100)
	bad := url.Values{"grant_type": {"password"}, "username": {username}, "password": {"wrong"}}

	for i := 0; i < 2; i++ {
		w := s.token(bad)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := s.token(url.Values{"grant_type": {"password"}, "username": {username}, "password": {password}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "too_many_requests", decodeError(t, w).Error)

	// Other endpoints are not throttled.
	w = s.do(httptest.NewRequest(http.MethodGet, "/realms/"+realm+"/protocol/openid-connect/certs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
