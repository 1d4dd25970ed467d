package service

import (
	"context"
	goerrors "errors"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// CookieRefreshPolicy decides on every cookie-bearing request whether the identity
// cookie is kept, silently re-signed with the active key, or rejected.
// CookieRefreshPolicy 在每个携带 Cookie 的请求上决定身份 Cookie 是保留、
// 使用活动密钥静默重签，还是拒绝。
type CookieRefreshPolicy struct {
	registry KeyRegistry
	verifier Verifier
	signer   Signer
	claims   *ClaimsPolicy
	logger   logger.Logger
	metrics  Metrics
}

// NewCookieRefreshPolicy creates a new CookieRefreshPolicy.
func NewCookieRefreshPolicy(registry KeyRegistry, verifier Verifier, signer Signer, claims *ClaimsPolicy, log logger.Logger, metrics Metrics) *CookieRefreshPolicy {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &CookieRefreshPolicy{
		registry: registry,
		verifier: verifier,
		signer:   signer,
		claims:   claims,
		logger:   log.WithComponent("CookieRefreshPolicy"),
		metrics:  metrics,
	}
}

// Evaluate applies the policy to cookie. An error is returned only for faults that are
// not a property of the cookie itself, such as a failing key store.
// Evaluate 对 cookie 应用策略。仅当故障与 cookie 本身无关（例如密钥存储故障）时才返回错误。
func (p *CookieRefreshPolicy) Evaluate(ctx context.Context, tenantID string, alg constants.JWTAlgorithm, cookie string) (*models.CookieDecision, error) {
	claims := &models.TokenClaims{}
	result := p.verifier.Verify(ctx, tenantID, cookie, claims)
	if !result.Valid {
		return p.decide(tenantID, &models.CookieDecision{Action: models.CookieReject, Verification: result}), nil
	}
	if err := p.claims.Validate(tenantID, claims, constants.TokenTypeIdentityCookie); err != nil {
		p.logger.Debug(ctx, "identity cookie claims rejected",
			logger.String("tenant_id", tenantID),
			logger.Error(err),
		)
		return p.decide(tenantID, &models.CookieDecision{Action: models.CookieReject, Verification: result}), nil
	}

	active, err := p.registry.ActiveKey(ctx, tenantID, alg)
	if err != nil {
		if goerrors.Is(err, errors.ErrNoActiveKey) {
			p.logger.Warn(ctx, "no active key to refresh identity cookie with",
				logger.String("tenant_id", tenantID),
				logger.String("algorithm", string(alg)),
			)
			return p.decide(tenantID, &models.CookieDecision{Action: models.CookieKeep, Claims: claims, Verification: result}), nil
		}
		return nil, err
	}

	if active.ID() == result.KeyID {
		return p.decide(tenantID, &models.CookieDecision{Action: models.CookieKeep, Claims: claims, Verification: result}), nil
	}

	refreshed, err := p.signer.Sign(ctx, tenantID, alg, claims)
	if err != nil {
		if goerrors.Is(err, errors.ErrNoActiveKey) {
			// The active key was removed between the two calls.
			return p.decide(tenantID, &models.CookieDecision{Action: models.CookieKeep, Claims: claims, Verification: result}), nil
		}
		return nil, err
	}
	p.logger.Info(ctx, "identity cookie re-signed with active key",
		logger.String("tenant_id", tenantID),
		logger.String("old_kid", result.KeyID),
		logger.String("new_kid", refreshed.KeyID),
	)
	return p.decide(tenantID, &models.CookieDecision{
		Action:       models.CookieRefresh,
		Claims:       claims,
		Verification: result,
		Refreshed:    refreshed,
	}), nil
}

func (p *CookieRefreshPolicy) decide(tenantID string, d *models.CookieDecision) *models.CookieDecision {
	p.metrics.RecordCookieDecision(tenantID, string(d.Action))
	return d
}
