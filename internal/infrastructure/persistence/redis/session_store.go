package redis

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// SessionStore keeps login sessions in Redis under "<prefix>session:<tenant>:<sid>".
// Keys expire with the session.
type SessionStore struct {
	client  redis.UniversalClient
	prefix  string
	metrics service.Metrics
	now     func() time.Time
}

// NewSessionStore creates a Redis backed session store.
func NewSessionStore(client redis.UniversalClient, keyPrefix string, metrics service.Metrics) *SessionStore {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &SessionStore{client: client, prefix: keyPrefix, metrics: metrics, now: time.Now}
}

var _ repository.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) key(tenantID, sessionID string) string {
	return fmt.Sprintf("%ssession:%s:%s", s.prefix, tenantID, sessionID)
}

// Save stores the session with a TTL matching its remaining lifetime.
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.ErrInvalidRequest("session already expired")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return errors.WrapError(err, "failed to encode session")
	}
	if err := s.client.Set(ctx, s.key(session.TenantID, session.ID), data, ttl).Err(); err != nil {
		return errors.WrapError(err, "failed to store session")
	}
	return nil
}

// Get returns errors.ErrLoginRequired when the session is unknown or expired.
func (s *SessionStore) Get(ctx context.Context, tenantID, sessionID string) (*models.Session, error) {
	data, err := s.client.Get(ctx, s.key(tenantID, sessionID)).Bytes()
	if goerrors.Is(err, redis.Nil) {
		s.metrics.RecordCacheAccess("session", false)
		return nil, errors.ErrLoginRequired
	}
	if err != nil {
		return nil, errors.WrapError(err, "failed to load session")
	}
	s.metrics.RecordCacheAccess("session", true)

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.WrapError(err, "failed to decode session")
	}
	if session.IsExpired(s.now()) {
		return nil, errors.ErrLoginRequired
	}
	return &session, nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, tenantID, sessionID string) error {
	if err := s.client.Del(ctx, s.key(tenantID, sessionID)).Err(); err != nil {
		return errors.WrapError(err, "failed to delete session")
	}
	return nil
}
