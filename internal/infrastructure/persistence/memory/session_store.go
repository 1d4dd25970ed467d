package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// SessionStore keeps sessions in an expiring in-process cache.
type SessionStore struct {
	cache *gocache.Cache
	now   func() time.Time
}

// NewSessionStore creates an in-memory session store that purges expired entries every cleanupInterval.
func NewSessionStore(cleanupInterval time.Duration) *SessionStore {
	return &SessionStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

var _ repository.SessionStore = (*SessionStore)(nil)

func sessionKey(tenantID, sessionID string) string {
	return tenantID + "/" + sessionID
}

// Save stores a copy of the session until it expires.
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.ErrInvalidRequest("session already expired")
	}
	copied := *session
	s.cache.Set(sessionKey(session.TenantID, session.ID), &copied, ttl)
	return nil
}

// Get returns errors.ErrLoginRequired when the session is unknown or expired.
func (s *SessionStore) Get(ctx context.Context, tenantID, sessionID string) (*models.Session, error) {
	v, ok := s.cache.Get(sessionKey(tenantID, sessionID))
	if !ok {
		return nil, errors.ErrLoginRequired
	}
	session := *v.(*models.Session)
	if session.IsExpired(s.now()) {
		return nil, errors.ErrLoginRequired
	}
	return &session, nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, tenantID, sessionID string) error {
	s.cache.Delete(sessionKey(tenantID, sessionID))
	return nil
}
