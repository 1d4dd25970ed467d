package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/application/service"
	"github.com/turtacn/realmkeys/internal/interfaces/http/middleware"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// OIDCHandler handles the OpenID Connect token, userinfo and introspection endpoints.
// OIDCHandler 处理 OpenID Connect 的令牌、用户信息和内省端点。
type OIDCHandler struct {
	tokens service.TokenAppService
	logger logger.Logger
}

// NewOIDCHandler creates a new OIDCHandler.
func NewOIDCHandler(tokens service.TokenAppService, log logger.Logger) *OIDCHandler {
	return &OIDCHandler{tokens: tokens, logger: log.WithComponent("OIDCHandler")}
}

// Token handles POST /realms/:realm/protocol/openid-connect/token.
func (h *OIDCHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest("invalid request body").WithCause(err))
		return
	}

	resp, err := h.tokens.Token(c.Request.Context(), c.Param("realm"), &req)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	if err != nil {
		h.fail(c, "token request failed", err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, resp)
}

// UserInfo handles GET /realms/:realm/protocol/openid-connect/userinfo.
func (h *OIDCHandler) UserInfo(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		dto.SendError(c, errors.ErrInvalidToken("Missing bearer token"))
		return
	}

	info, err := h.tokens.UserInfo(c.Request.Context(), c.Param("realm"), token)
	if err != nil {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		h.fail(c, "userinfo request failed", err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, info)
}

// Introspect handles POST /realms/:realm/protocol/openid-connect/token/introspect.
func (h *OIDCHandler) Introspect(c *gin.Context) {
	var req dto.IntrospectRequest
	if err := c.ShouldBind(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest("invalid request body").WithCause(err))
		return
	}

	resp, err := h.tokens.Introspect(c.Request.Context(), c.Param("realm"), &req)
	if err != nil {
		h.fail(c, "introspection failed", err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, resp)
}

func (h *OIDCHandler) fail(c *gin.Context, msg string, err error) {
	if cbcErr, ok := errors.AsCBCError(err); !ok || cbcErr.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), msg, err, logger.String("tenant_id", c.Param("realm")))
	}
	_ = c.Error(err)
	dto.SendError(c, err)
}
