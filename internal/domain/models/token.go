// Package models defines the domain models for the realm key service.
package models

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/realmkeys/pkg/constants"
)

// TokenClaims are the claims carried by every artifact the service signs:
// access, refresh and ID tokens as well as the identity cookie.
// TokenClaims 是服务签发的所有制品（访问令牌、刷新令牌、ID 令牌以及身份 Cookie）携带的声明。
type TokenClaims struct {
	jwt.RegisteredClaims
	// Type distinguishes access, refresh, ID and identity artifacts.
	// Type 用于区分访问、刷新、ID 和身份制品。
	Type constants.TokenType `json:"typ"`
	// SessionID binds the artifact to a login session.
	// SessionID 将制品绑定到登录会话。
	SessionID string `json:"sid,omitempty"`
	// PreferredUsername is the login name of the subject.
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Scope             string `json:"scope,omitempty"`
}

// IsType reports whether the claims were issued as the given artifact type.
func (c *TokenClaims) IsType(t constants.TokenType) bool {
	return c.Type == t
}
