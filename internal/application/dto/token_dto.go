package dto

// TokenRequest 令牌端点请求 DTO（application/x-www-form-urlencoded）
type TokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type" validate:"required,oneof=password refresh_token"`
	Username     string `form:"username" json:"username" validate:"required_if=GrantType password,max=255"`
	Password     string `form:"password" json:"password" validate:"required_if=GrantType password"`
	RefreshToken string `form:"refresh_token" json:"refresh_token" validate:"required_if=GrantType refresh_token"`
	Scope        string `form:"scope" json:"scope" validate:"omitempty,max=512"`
}

// TokenResponse 令牌响应 DTO（访问令牌、刷新令牌与 ID 令牌）
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	IDToken          string `json:"id_token,omitempty"`
	SessionState     string `json:"session_state"`
	Scope            string `json:"scope,omitempty"`
}

// IntrospectRequest 令牌内省请求 DTO
type IntrospectRequest struct {
	Token         string `form:"token" json:"token" validate:"required"`
	TokenTypeHint string `form:"token_type_hint" json:"token_type_hint" validate:"omitempty,oneof=access_token refresh_token id_token"`
}

// IntrospectResponse 令牌内省响应 DTO。令牌无效时仅返回 active=false。
type IntrospectResponse struct {
	Active            bool   `json:"active"`
	Subject           string `json:"sub,omitempty"`
	Username          string `json:"username,omitempty"`
	Issuer            string `json:"iss,omitempty"`
	ExpiresAt         int64  `json:"exp,omitempty"`
	IssuedAt          int64  `json:"iat,omitempty"`
	JTI               string `json:"jti,omitempty"`
	Type              string `json:"typ,omitempty"`
	SessionState      string `json:"session_state,omitempty"`
	Scope             string `json:"scope,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// UserInfoResponse 用户信息响应 DTO
type UserInfoResponse struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
}
