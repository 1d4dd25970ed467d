// Package auth authenticates realm users against configured bcrypt password hashes.
package auth

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/errors"
)

type staticUser struct {
	user models.User
	hash []byte
}

// StaticAuthenticator authenticates the users listed in configuration.
type StaticAuthenticator struct {
	users map[string]staticUser
	// dummy is compared against when the user is unknown so both paths cost one bcrypt.
	dummy []byte
}

var _ service.Authenticator = (*StaticAuthenticator)(nil)

// NewStaticAuthenticator builds the user table. User IDs are stable UUIDs derived from realm and username.
func NewStaticAuthenticator(users []config.UserConfig) (*StaticAuthenticator, error) {
	a := &StaticAuthenticator{users: make(map[string]staticUser, len(users))}
	for _, u := range users {
		if u.Tenant == "" || u.Username == "" {
			return nil, errors.ErrInvalidRequest("user entries need a tenant and a username")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, errors.ErrInvalidRequest("user " + u.Username + " has an invalid bcrypt password hash")
		}
		key := userKey(u.Tenant, u.Username)
		if _, dup := a.users[key]; dup {
			return nil, errors.ErrInvalidRequest("duplicate user " + u.Username + " in realm " + u.Tenant)
		}
		a.users[key] = staticUser{
			user: models.User{
				ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
				TenantID: u.Tenant,
				Username: u.Username,
				Email:    u.Email,
			},
			hash: []byte(u.PasswordHash),
		}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("realmkeys"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	a.dummy = dummy
	return a, nil
}

func userKey(tenantID, username string) string {
	return tenantID + "/" + username
}

// Authenticate returns the user or an invalid_grant credentials error.
func (a *StaticAuthenticator) Authenticate(ctx context.Context, tenantID, username, password string) (*models.User, error) {
	entry, ok := a.users[userKey(tenantID, username)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return nil, errors.ErrInvalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(password)); err != nil {
		return nil, errors.ErrInvalidCredentials()
	}
	user := entry.user
	return &user, nil
}

// HashPassword returns a bcrypt hash suitable for the users configuration section.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
