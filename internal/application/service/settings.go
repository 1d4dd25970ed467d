// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	domainService "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// TokenSettings carries the lifetimes and the signing algorithm used for every issued artifact.
// TokenSettings 包含所有签发制品使用的有效期与签名算法。
type TokenSettings struct {
	Algorithm  constants.JWTAlgorithm
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
}

// NewTokenSettings reads TokenSettings from the configuration, falling back to the defaults.
func NewTokenSettings(cfg *config.Config) TokenSettings {
	s := TokenSettings{
		Algorithm:  constants.JWTAlgorithm(cfg.Keys.DefaultAlgorithm),
		AccessTTL:  cfg.Tokens.AccessTokenTTL,
		RefreshTTL: cfg.Tokens.RefreshTokenTTL,
		SessionTTL: cfg.Tokens.SessionTTL,
	}
	return s.withDefaults()
}

func (s TokenSettings) withDefaults() TokenSettings {
	if s.Algorithm == "" {
		s.Algorithm = constants.DefaultJWTAlgorithm
	}
	if s.AccessTTL <= 0 {
		s.AccessTTL = constants.AccessTokenDefaultTTL
	}
	if s.RefreshTTL <= 0 {
		s.RefreshTTL = constants.RefreshTokenDefaultTTL
	}
	if s.SessionTTL <= 0 {
		s.SessionTTL = constants.SessionDefaultTTL
	}
	return s
}

// startSession creates and stores a login session for user.
func startSession(ctx context.Context, store repository.SessionStore, user *models.User, ttl time.Duration, now time.Time) (*models.Session, error) {
	session := &models.Session{
		ID:        uuid.NewString(),
		TenantID:  user.TenantID,
		Subject:   user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// sessionClaims builds the claims shared by every artifact bound to session.
func sessionClaims(policy *domainService.ClaimsPolicy, session *models.Session, typ constants.TokenType, now, expiresAt time.Time) *models.TokenClaims {
	return &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    policy.Issuer(session.TenantID),
			Subject:   session.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:              typ,
		SessionID:         session.ID,
		PreferredUsername: session.Username,
		Email:             session.Email,
	}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// isSessionMissing reports whether a session store error means the session is gone.
func isSessionMissing(err error) bool {
	return goerrors.Is(err, errors.ErrLoginRequired)
}
