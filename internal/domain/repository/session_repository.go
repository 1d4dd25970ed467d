package repository

import (
	"context"

	"github.com/turtacn/realmkeys/internal/domain/models"
)

// SessionStore persists login sessions referenced by identity cookies and refresh tokens.
// SessionStore 持久化由身份 Cookie 和刷新令牌引用的登录会话。
type SessionStore interface {
	// Save stores the session until its ExpiresAt.
	Save(ctx context.Context, session *models.Session) error
	// Get returns errors.ErrLoginRequired when the session is unknown or expired.
	Get(ctx context.Context, tenantID, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, tenantID, sessionID string) error
}
