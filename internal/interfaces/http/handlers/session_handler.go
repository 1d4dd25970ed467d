package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/application/service"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/interfaces/http/middleware"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// SessionHandler handles browser login and the account page guarded by the identity cookie.
// SessionHandler 处理浏览器登录以及受身份 Cookie 保护的账户页面。
type SessionHandler struct {
	sessions service.SessionAppService
	cookies  middleware.CookieSettings
	logger   logger.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions service.SessionAppService, cookies middleware.CookieSettings, log logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, cookies: cookies, logger: log.WithComponent("SessionHandler")}
}

// Login handles POST /realms/:realm/login.
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest("invalid request body").WithCause(err))
		return
	}

	realm := c.Param("realm")
	result, err := h.sessions.Login(c.Request.Context(), realm, &req)
	if err != nil {
		if cbcErr, ok := errors.AsCBCError(err); !ok || cbcErr.HTTPStatus() >= http.StatusInternalServerError {
			h.logger.Error(c.Request.Context(), "login failed", err, logger.String("tenant_id", realm))
		}
		dto.SendError(c, err)
		return
	}

	middleware.SetIdentityCookie(c, realm, result.Cookie, result.Session.ExpiresAt, h.cookies)
	dto.SendSuccess(c, http.StatusOK, accountResponse(result.Session))
}

// Account handles GET /realms/:realm/account. It runs behind middleware.IdentityCookie.
func (h *SessionHandler) Account(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		dto.SendError(c, errors.ErrLoginRequired)
		return
	}
	dto.SendSuccess(c, http.StatusOK, accountResponse(session))
}

// Logout handles POST /realms/:realm/logout.
func (h *SessionHandler) Logout(c *gin.Context) {
	realm := c.Param("realm")
	cookie, _ := c.Cookie(constants.IdentityCookieName)
	if err := h.sessions.Logout(c.Request.Context(), realm, cookie); err != nil {
		h.logger.Error(c.Request.Context(), "logout failed", err, logger.String("tenant_id", realm))
		dto.SendError(c, err)
		return
	}
	middleware.ClearIdentityCookie(c, realm, h.cookies)
	c.Status(http.StatusNoContent)
}

func accountResponse(session *models.Session) dto.AccountResponse {
	return dto.AccountResponse{
		Subject:   session.Subject,
		Username:  session.Username,
		Email:     session.Email,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Unix(),
	}
}
