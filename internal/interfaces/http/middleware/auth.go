package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/application/service"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// BearerToken extracts the credentials of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(constants.HeaderAuthorization)
	if len(header) <= len(constants.BearerPrefix) || !strings.EqualFold(header[:len(constants.BearerPrefix)], constants.BearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(constants.BearerPrefix):]), true
}

// AdminAuth guards the administrative routes with a static bearer token.
// An empty token disables the check.
// AdminAuth 使用静态 Bearer 令牌保护管理路由。令牌为空时不做校验。
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		presented, ok := BearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			dto.SendError(c, errors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// CookieSettings controls the attributes of the identity cookie.
type CookieSettings struct {
	Secure bool
}

// IdentityCookiePath scopes the cookie to one realm.
func IdentityCookiePath(realm string) string {
	return constants.IdentityCookiePath + realm + "/"
}

// SetIdentityCookie writes the identity cookie for a session.
// SetIdentityCookie 为会话写入身份 Cookie。
func SetIdentityCookie(c *gin.Context, realm string, cookie *models.SignedArtifact, expiresAt time.Time, settings CookieSettings) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.IdentityCookieName, cookie.Token, maxAge, IdentityCookiePath(realm), "", settings.Secure, true)
}

// ClearIdentityCookie expires the identity cookie in the browser.
func ClearIdentityCookie(c *gin.Context, realm string, settings CookieSettings) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.IdentityCookieName, "", -1, IdentityCookiePath(realm), "", settings.Secure, true)
}

// IdentityCookie resumes the session of the presented identity cookie. A cookie signed by a
// superseded key is replaced transparently; an untrusted cookie forces a new login.
// IdentityCookie 恢复所出示身份 Cookie 对应的会话。由旧密钥签名的 Cookie 会被透明替换；
// 不可信的 Cookie 会强制重新登录。
func IdentityCookie(sessions service.SessionAppService, settings CookieSettings, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		realm := c.Param("realm")
		cookie, _ := c.Cookie(constants.IdentityCookieName)

		result, err := sessions.Resume(c.Request.Context(), realm, cookie)
		if err != nil {
			if cbcErr, ok := errors.AsCBCError(err); ok && cbcErr.Code() == errors.CodeLoginRequired {
				ClearIdentityCookie(c, realm, settings)
			} else {
				log.Error(c.Request.Context(), "failed to resume session", err, logger.String("tenant_id", realm))
			}
			dto.SendError(c, err)
			return
		}

		if result.Cookie != nil {
			SetIdentityCookie(c, realm, result.Cookie, result.Session.ExpiresAt, settings)
		}
		c.Set(string(constants.ContextKeySession), result.Session)
		c.Next()
	}
}

// SessionFrom returns the session stored by IdentityCookie.
func SessionFrom(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(string(constants.ContextKeySession))
	if !ok {
		return nil, false
	}
	session, ok := v.(*models.Session)
	return session, ok
}
