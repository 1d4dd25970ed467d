package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// JWTSigner signs claims as compact JWS with the tenant's active key.
// JWTSigner 使用租户的活动密钥将声明签名为紧凑 JWS。
type JWTSigner struct {
	registry KeyRegistry
	logger   logger.Logger
	metrics  Metrics
}

// NewJWTSigner creates a new JWTSigner.
func NewJWTSigner(registry KeyRegistry, log logger.Logger, metrics Metrics) *JWTSigner {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &JWTSigner{
		registry: registry,
		logger:   log.WithComponent("JWTSigner"),
		metrics:  metrics,
	}
}

var _ Signer = (*JWTSigner)(nil)

// Sign signs claims with the active key for alg. It never falls back to another key:
// errors.ErrNoActiveKey is returned to the caller as is.
// Sign 使用 alg 对应的活动密钥签名，绝不回退到其他密钥。
func (s *JWTSigner) Sign(ctx context.Context, tenantID string, alg constants.JWTAlgorithm, claims jwt.Claims) (*models.SignedArtifact, error) {
	start := time.Now()

	key, err := s.registry.ActiveKey(ctx, tenantID, alg)
	if err != nil {
		s.metrics.RecordSign(tenantID, string(alg), false, time.Since(start))
		return nil, err
	}

	method := jwt.GetSigningMethod(string(key.Algorithm()))
	if method == nil {
		s.metrics.RecordSign(tenantID, string(alg), false, time.Since(start))
		return nil, errors.ErrServerError(fmt.Sprintf("no signing method for %s", key.Algorithm()))
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.ID()

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		s.metrics.RecordSign(tenantID, string(alg), false, time.Since(start))
		s.logger.Error(ctx, "failed to sign token", err,
			logger.String("tenant_id", tenantID),
			logger.String("kid", key.ID()),
		)
		return nil, errors.WrapError(err, "failed to sign token")
	}

	s.metrics.RecordSign(tenantID, string(alg), true, time.Since(start))
	return &models.SignedArtifact{
		KeyID:     key.ID(),
		Algorithm: key.Algorithm(),
		Token:     signed,
	}, nil
}
