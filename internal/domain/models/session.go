package models

import "time"

// Session is a user's login session inside a realm. The identity cookie references it by ID.
// Session 是用户在领域内的登录会话。身份 Cookie 通过 ID 引用它。
type Session struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Subject   string    `json:"subject"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// User is an authenticated realm user.
type User struct {
	ID       string
	TenantID string
	Username string
	Email    string
}
