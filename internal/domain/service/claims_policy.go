package service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// ClaimsPolicy validates the temporal and issuer claims of an artifact whose signature
// was already verified.
// ClaimsPolicy 校验签名已验证通过的制品的时间和签发者声明。
type ClaimsPolicy struct {
	issuerBaseURL string
	leeway        time.Duration
	now           func() time.Time
}

// NewClaimsPolicy creates a new ClaimsPolicy. The issuer of tenant t is {issuerBaseURL}/realms/{t}.
func NewClaimsPolicy(issuerBaseURL string, leeway time.Duration) *ClaimsPolicy {
	return &ClaimsPolicy{
		issuerBaseURL: strings.TrimRight(issuerBaseURL, "/"),
		leeway:        leeway,
		now:           time.Now,
	}
}

// Issuer returns the iss value for tenantID.
func (p *ClaimsPolicy) Issuer(tenantID string) string {
	return p.issuerBaseURL + "/realms/" + tenantID
}

// Validate checks expiry, not-before, issuer and the artifact type.
func (p *ClaimsPolicy) Validate(tenantID string, claims *models.TokenClaims, expected constants.TokenType) error {
	validator := jwt.NewValidator(
		jwt.WithLeeway(p.leeway),
		jwt.WithIssuer(p.Issuer(tenantID)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err := validator.Validate(claims); err != nil {
		return errors.ErrInvalidToken("Token is not active").WithCause(err)
	}
	if !claims.IsType(expected) {
		return errors.ErrInvalidToken("Invalid token type")
	}
	return nil
}
