package service

import (
	"context"
	goerrors "errors"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// JWTVerifier verifies compact JWS against every retained key of a tenant.
// Whether the key is the active one does not matter, only that it still exists.
// JWTVerifier 使用租户所有保留的密钥验证紧凑 JWS。
// 密钥是否为活动密钥无关紧要，只要它仍然存在即可。
type JWTVerifier struct {
	registry KeyRegistry
	parser   *jwt.Parser
	logger   logger.Logger
	metrics  Metrics
	tracer   trace.Tracer
}

// NewJWTVerifier creates a new JWTVerifier.
func NewJWTVerifier(registry KeyRegistry, log logger.Logger, metrics Metrics) *JWTVerifier {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	// Claims are checked by ClaimsPolicy once the signature is trusted.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	return &JWTVerifier{
		registry: registry,
		parser:   parser,
		logger:   log.WithComponent("JWTVerifier"),
		metrics:  metrics,
		tracer:   otel.Tracer("realmkeys/domain/service"),
	}
}

var _ Verifier = (*JWTVerifier)(nil)

// Verify checks the header kid, resolves the key and verifies the signature, in that order.
// Decoded claims are written into claims even on failure; only trust them on a Valid result.
// Verify 依次检查头部 kid、解析密钥并验证签名。
func (v *JWTVerifier) Verify(ctx context.Context, tenantID, tokenString string, claims jwt.Claims) models.VerificationResult {
	ctx, span := v.tracer.Start(ctx, "JWTVerifier.Verify",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	var (
		keyID         string
		reason        = models.ReasonMalformedHeader
		keyfuncCalled bool
	)
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		keyfuncCalled = true
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			reason = models.ReasonMalformedHeader
			return nil, errors.ErrMalformedHeader
		}
		keyID = kid

		key, err := v.registry.Lookup(ctx, tenantID, kid)
		if err != nil {
			reason = models.ReasonUnknownKey
			return nil, err
		}
		if t.Method.Alg() != string(key.Algorithm()) {
			reason = models.ReasonBadSignature
			return nil, errors.ErrBadSignature
		}
		reason = models.ReasonBadSignature
		return key.PublicKey, nil
	})

	var result models.VerificationResult
	switch {
	case err == nil:
		result = models.Valid(keyID)
	case !keyfuncCalled:
		result = v.classifyUndecoded(ctx, tenantID, tokenString)
	default:
		if reason == models.ReasonUnknownKey && !errors.IsVerificationFailure(err) {
			// Lookup failed for a reason other than a missing key, e.g. the store is down.
			v.logger.Error(ctx, "key lookup failed during verification", err,
				logger.String("tenant_id", tenantID),
				logger.String("kid", keyID),
			)
		}
		result = models.Invalid(keyID, reason)
	}

	span.SetAttributes(
		attribute.Bool("valid", result.Valid),
		attribute.String("kid", result.KeyID),
		attribute.String("reason", string(result.Reason)),
	)
	v.metrics.RecordVerify(tenantID, result.Valid, string(result.Reason))
	if !result.Valid {
		v.logger.Debug(ctx, "token verification failed",
			logger.String("tenant_id", tenantID),
			logger.String("kid", result.KeyID),
			logger.String("reason", string(result.Reason)),
		)
	}
	return result
}

// classifyUndecoded assigns a reason to a token the parser rejected before key resolution.
// A readable kid with an unregistered or missing alg is an algorithm mismatch, not a header defect.
func (v *JWTVerifier) classifyUndecoded(ctx context.Context, tenantID, tokenString string) models.VerificationResult {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if token == nil || !goerrors.Is(err, jwt.ErrTokenUnverifiable) {
		return models.Invalid("", models.ReasonMalformedHeader)
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return models.Invalid("", models.ReasonMalformedHeader)
	}
	if _, err := v.registry.Lookup(ctx, tenantID, kid); err != nil {
		return models.Invalid(kid, models.ReasonUnknownKey)
	}
	return models.Invalid(kid, models.ReasonBadSignature)
}
