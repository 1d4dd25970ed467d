package service

import (
	"context"
	"time"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	domainService "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
	"github.com/turtacn/realmkeys/pkg/utils"
)

// LoginResult is a new session and the identity cookie bound to it.
type LoginResult struct {
	Session *models.Session
	Cookie  *models.SignedArtifact
}

// ResumeResult is a resumed session. Cookie is set only when the presented cookie was re-signed
// and must be sent back to the browser.
// ResumeResult 是恢复的会话。仅当所出示的 Cookie 被重签且需要回写浏览器时 Cookie 才非空。
type ResumeResult struct {
	Session *models.Session
	Action  models.CookieAction
	Cookie  *models.SignedArtifact
}

// SessionAppService defines the interface for browser sessions carried by the identity cookie
type SessionAppService interface {
	// Login authenticates the user, starts a session and signs its identity cookie
	Login(ctx context.Context, tenantID string, req *dto.LoginRequest) (*LoginResult, error)

	// Resume applies the cookie refresh policy; errors.ErrLoginRequired forces a new login
	Resume(ctx context.Context, tenantID, cookie string) (*ResumeResult, error)

	// Logout ends the session referenced by a verifiable cookie
	Logout(ctx context.Context, tenantID, cookie string) error
}

// sessionAppServiceImpl is the concrete implementation of SessionAppService
type sessionAppServiceImpl struct {
	authenticator domainService.Authenticator
	sessions      repository.SessionStore
	signer        domainService.Signer
	verifier      domainService.Verifier
	cookies       *domainService.CookieRefreshPolicy
	claims        *domainService.ClaimsPolicy
	settings      TokenSettings
	logger        logger.Logger
	now           func() time.Time
}

// NewSessionAppService creates a new instance of SessionAppService
func NewSessionAppService(
	authenticator domainService.Authenticator,
	sessions repository.SessionStore,
	signer domainService.Signer,
	verifier domainService.Verifier,
	cookies *domainService.CookieRefreshPolicy,
	claims *domainService.ClaimsPolicy,
	settings TokenSettings,
	log logger.Logger,
) SessionAppService {
	return &sessionAppServiceImpl{
		authenticator: authenticator,
		sessions:      sessions,
		signer:        signer,
		verifier:      verifier,
		cookies:       cookies,
		claims:        claims,
		settings:      settings.withDefaults(),
		logger:        log.WithComponent("SessionAppService"),
		now:           time.Now,
	}
}

// Login implements the browser login
func (s *sessionAppServiceImpl) Login(ctx context.Context, tenantID string, req *dto.LoginRequest) (*LoginResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	user, err := s.authenticator.Authenticate(ctx, tenantID, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session, err := startSession(ctx, s.sessions, user, s.settings.SessionTTL, now)
	if err != nil {
		s.logger.Error(ctx, "failed to save session", err, logger.String("tenant_id", tenantID))
		return nil, errors.WrapError(err, "failed to save session")
	}

	claims := sessionClaims(s.claims, session, constants.TokenTypeIdentityCookie, now, session.ExpiresAt)
	cookie, err := s.signer.Sign(ctx, tenantID, s.settings.Algorithm, claims)
	if err != nil {
		// A session nobody can present is useless.
		_ = s.sessions.Delete(ctx, tenantID, session.ID)
		return nil, err
	}

	s.logger.Info(ctx, "user logged in",
		logger.String("tenant_id", tenantID),
		logger.String("session_id", session.ID),
		logger.String("kid", cookie.KeyID),
	)
	return &LoginResult{Session: session, Cookie: cookie}, nil
}

// Resume implements cookie based session reuse
func (s *sessionAppServiceImpl) Resume(ctx context.Context, tenantID, cookie string) (*ResumeResult, error) {
	if cookie == "" {
		return nil, errors.ErrLoginRequired
	}

	decision, err := s.cookies.Evaluate(ctx, tenantID, s.settings.Algorithm, cookie)
	if err != nil {
		return nil, errors.WrapError(err, "failed to evaluate identity cookie")
	}
	if decision.Action == models.CookieReject {
		s.logger.Info(ctx, "identity cookie rejected",
			logger.String("tenant_id", tenantID),
			logger.String("kid", decision.Verification.KeyID),
			logger.String("reason", string(decision.Verification.Reason)),
		)
		return nil, errors.ErrLoginRequired
	}

	session, err := s.sessions.Get(ctx, tenantID, decision.Claims.SessionID)
	if err != nil {
		if isSessionMissing(err) {
			return nil, errors.ErrLoginRequired
		}
		return nil, errors.WrapError(err, "failed to load session")
	}

	result := &ResumeResult{Session: session, Action: decision.Action}
	if decision.Action == models.CookieRefresh {
		result.Cookie = decision.Refreshed
	}
	return result, nil
}

// Logout implements session termination
func (s *sessionAppServiceImpl) Logout(ctx context.Context, tenantID, cookie string) error {
	claims := &models.TokenClaims{}
	result := s.verifier.Verify(ctx, tenantID, cookie, claims)
	if !result.Valid || !claims.IsType(constants.TokenTypeIdentityCookie) {
		return nil
	}
	if err := s.sessions.Delete(ctx, tenantID, claims.SessionID); err != nil {
		return errors.WrapError(err, "failed to delete session")
	}
	s.logger.Info(ctx, "user logged out", logger.String("tenant_id", tenantID), logger.String("session_id", claims.SessionID))
	return nil
}
