package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	domainService "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
	"github.com/turtacn/realmkeys/pkg/utils"
)

// TokenAppService defines the interface for the OpenID Connect token surfaces of a realm
type TokenAppService interface {
	// Token handles the password and refresh_token grants
	Token(ctx context.Context, tenantID string, req *dto.TokenRequest) (*dto.TokenResponse, error)

	// UserInfo returns the claims of a valid access token
	UserInfo(ctx context.Context, tenantID, accessToken string) (*dto.UserInfoResponse, error)

	// Introspect reports whether a token is active; invalid tokens yield active=false, never an error
	Introspect(ctx context.Context, tenantID string, req *dto.IntrospectRequest) (*dto.IntrospectResponse, error)
}

// tokenAppServiceImpl is the concrete implementation of TokenAppService
type tokenAppServiceImpl struct {
	authenticator domainService.Authenticator
	sessions      repository.SessionStore
	signer        domainService.Signer
	verifier      domainService.Verifier
	claims        *domainService.ClaimsPolicy
	settings      TokenSettings
	metrics       domainService.Metrics
	logger        logger.Logger
	now           func() time.Time
}

// NewTokenAppService creates a new instance of TokenAppService
func NewTokenAppService(
	authenticator domainService.Authenticator,
	sessions repository.SessionStore,
	signer domainService.Signer,
	verifier domainService.Verifier,
	claims *domainService.ClaimsPolicy,
	settings TokenSettings,
	metrics domainService.Metrics,
	log logger.Logger,
) TokenAppService {
	if metrics == nil {
		metrics = domainService.NoopMetrics{}
	}
	return &tokenAppServiceImpl{
		authenticator: authenticator,
		sessions:      sessions,
		signer:        signer,
		verifier:      verifier,
		claims:        claims,
		settings:      settings.withDefaults(),
		metrics:       metrics,
		logger:        log.WithComponent("TokenAppService"),
		now:           time.Now,
	}
}

// Token implements the token endpoint
func (s *tokenAppServiceImpl) Token(ctx context.Context, tenantID string, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	start := time.Now()
	grantType := constants.GrantType(req.GrantType)

	var (
		resp *dto.TokenResponse
		err  error
	)
	switch grantType {
	case constants.GrantTypePassword:
		resp, err = s.passwordGrant(ctx, tenantID, req)
	case constants.GrantTypeRefreshToken:
		resp, err = s.refreshGrant(ctx, tenantID, req)
	default:
		err = errors.ErrUnsupportedGrantType(req.GrantType)
	}

	errorCode := ""
	if err != nil {
		errorCode = string(errors.CodeServerError)
		if cbcErr, ok := errors.AsCBCError(err); ok {
			errorCode = string(cbcErr.Code())
		}
	}
	s.metrics.RecordTokenIssue(tenantID, req.GrantType, err == nil, time.Since(start), errorCode)
	return resp, err
}

func (s *tokenAppServiceImpl) passwordGrant(ctx context.Context, tenantID string, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	// 1. Validate request payload
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	// 2. Authenticate the resource owner
	user, err := s.authenticator.Authenticate(ctx, tenantID, req.Username, req.Password)
	if err != nil {
		s.logger.Info(ctx, "password grant rejected",
			logger.String("tenant_id", tenantID),
			logger.String("username", req.Username),
		)
		return nil, err
	}

	// 3. Start a session and issue the token set
	session, err := startSession(ctx, s.sessions, user, s.settings.SessionTTL, s.now())
	if err != nil {
		s.logger.Error(ctx, "failed to save session", err, logger.String("tenant_id", tenantID))
		return nil, errors.WrapError(err, "failed to save session")
	}
	return s.issueTokens(ctx, session, req.Scope)
}

func (s *tokenAppServiceImpl) refreshGrant(ctx context.Context, tenantID string, req *dto.TokenRequest) (*dto.TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	// 1. Signature first: nothing in the token is trusted before it verifies
	claims := &models.TokenClaims{}
	result := s.verifier.Verify(ctx, tenantID, req.RefreshToken, claims)
	if !result.Valid {
		s.logger.Info(ctx, "refresh token failed verification",
			logger.String("tenant_id", tenantID),
			logger.String("kid", result.KeyID),
			logger.String("reason", string(result.Reason)),
		)
		return nil, errors.ErrInvalidGrant("Invalid refresh token")
	}

	// 2. Temporal, issuer and type claims
	if err := s.claims.Validate(tenantID, claims, constants.TokenTypeRefresh); err != nil {
		s.logger.Info(ctx, "refresh token claims rejected", logger.String("tenant_id", tenantID), logger.Error(err))
		return nil, errors.ErrInvalidGrant("Invalid refresh token")
	}

	// 3. The session the token belongs to must still be alive
	session, err := s.sessions.Get(ctx, tenantID, claims.SessionID)
	if err != nil {
		if isSessionMissing(err) {
			return nil, errors.ErrInvalidGrant("Session not active")
		}
		return nil, errors.WrapError(err, "failed to load session")
	}
	if session.Subject != claims.Subject {
		return nil, errors.ErrInvalidGrant("Invalid refresh token")
	}

	scope := claims.Scope
	if req.Scope != "" {
		scope = req.Scope
	}
	return s.issueTokens(ctx, session, scope)
}

// issueTokens signs a fresh access, refresh and ID token with the realm's active key.
func (s *tokenAppServiceImpl) issueTokens(ctx context.Context, session *models.Session, scope string) (*dto.TokenResponse, error) {
	now := s.now()
	accessExp := now.Add(s.settings.AccessTTL)
	refreshExp := minTime(now.Add(s.settings.RefreshTTL), session.ExpiresAt)

	accessClaims := sessionClaims(s.claims, session, constants.TokenTypeAccess, now, accessExp)
	accessClaims.Audience = jwt.ClaimStrings{"account"}
	accessClaims.Scope = scope
	access, err := s.signer.Sign(ctx, session.TenantID, s.settings.Algorithm, accessClaims)
	if err != nil {
		return nil, err
	}

	refreshClaims := sessionClaims(s.claims, session, constants.TokenTypeRefresh, now, refreshExp)
	refreshClaims.Audience = jwt.ClaimStrings{s.claims.Issuer(session.TenantID)}
	refreshClaims.Scope = scope
	refresh, err := s.signer.Sign(ctx, session.TenantID, s.settings.Algorithm, refreshClaims)
	if err != nil {
		return nil, err
	}

	idClaims := sessionClaims(s.claims, session, constants.TokenTypeID, now, accessExp)
	idToken, err := s.signer.Sign(ctx, session.TenantID, s.settings.Algorithm, idClaims)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "token set issued",
		logger.String("tenant_id", session.TenantID),
		logger.String("session_id", session.ID),
		logger.String("kid", access.KeyID),
	)
	return &dto.TokenResponse{
		AccessToken:      access.Token,
		ExpiresIn:        int64(accessExp.Sub(now).Seconds()),
		RefreshExpiresIn: int64(refreshExp.Sub(now).Seconds()),
		RefreshToken:     refresh.Token,
		TokenType:        string(constants.TokenTypeAccess),
		IDToken:          idToken.Token,
		SessionState:     session.ID,
		Scope:            scope,
	}, nil
}

// UserInfo implements the userinfo endpoint
func (s *tokenAppServiceImpl) UserInfo(ctx context.Context, tenantID, accessToken string) (*dto.UserInfoResponse, error) {
	claims := &models.TokenClaims{}
	result := s.verifier.Verify(ctx, tenantID, accessToken, claims)
	if !result.Valid {
		s.logger.Info(ctx, "userinfo token failed verification",
			logger.String("tenant_id", tenantID),
			logger.String("reason", string(result.Reason)),
		)
		return nil, errors.ErrInvalidToken("Token verification failed")
	}
	if err := s.claims.Validate(tenantID, claims, constants.TokenTypeAccess); err != nil {
		return nil, err
	}
	if _, err := s.sessions.Get(ctx, tenantID, claims.SessionID); err != nil {
		if isSessionMissing(err) {
			return nil, errors.ErrInvalidToken("User session not found")
		}
		return nil, errors.WrapError(err, "failed to load session")
	}

	return &dto.UserInfoResponse{
		Subject:           claims.Subject,
		PreferredUsername: claims.PreferredUsername,
		Email:             claims.Email,
	}, nil
}

// Introspect implements the token introspection endpoint
func (s *tokenAppServiceImpl) Introspect(ctx context.Context, tenantID string, req *dto.IntrospectRequest) (*dto.IntrospectResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	inactive := &dto.IntrospectResponse{Active: false}

	claims := &models.TokenClaims{}
	result := s.verifier.Verify(ctx, tenantID, req.Token, claims)
	if !result.Valid {
		s.logger.Debug(ctx, "introspected token failed verification",
			logger.String("tenant_id", tenantID),
			logger.String("reason", string(result.Reason)),
		)
		return inactive, nil
	}

	switch claims.Type {
	case constants.TokenTypeAccess, constants.TokenTypeRefresh, constants.TokenTypeID:
	default:
		return inactive, nil
	}
	if err := s.claims.Validate(tenantID, claims, claims.Type); err != nil {
		return inactive, nil
	}
	if _, err := s.sessions.Get(ctx, tenantID, claims.SessionID); err != nil {
		if isSessionMissing(err) {
			return inactive, nil
		}
		return nil, errors.WrapError(err, "failed to load session")
	}

	resp := &dto.IntrospectResponse{
		Active:            true,
		Subject:           claims.Subject,
		Username:          claims.PreferredUsername,
		PreferredUsername: claims.PreferredUsername,
		Issuer:            claims.Issuer,
		JTI:               claims.ID,
		Type:              string(claims.Type),
		SessionState:      claims.SessionID,
		Scope:             claims.Scope,
		TokenType:         string(constants.TokenTypeAccess),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Unix()
	}
	return resp, nil
}
