// Package handlers holds the gin handlers of the HTTP interface.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/realmkeys/internal/application"
	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// KeyHandler serves the key administration routes and the realm's JWKS.
// KeyHandler 提供密钥管理路由以及领域的 JWKS。
type KeyHandler struct {
	keys   application.KeyManager
	logger logger.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys application.KeyManager, log logger.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, logger: log.WithComponent("KeyHandler")}
}

// CreateKey handles POST /admin/realms/:realm/keys.
func (h *KeyHandler) CreateKey(c *gin.Context) {
	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.SendError(c, errors.ErrInvalidRequest("invalid request body").WithCause(err))
		return
	}

	kid, err := h.keys.CreateKey(c.Request.Context(), c.Param("realm"), &req)
	if err != nil {
		h.fail(c, "failed to create key", err)
		return
	}
	c.Header("Location", c.Request.URL.Path+"/"+kid)
	dto.SendSuccess(c, http.StatusCreated, dto.CreateKeyResponse{ID: kid})
}

// DeleteKey handles DELETE /admin/realms/:realm/keys/:kid.
func (h *KeyHandler) DeleteKey(c *gin.Context) {
	if err := h.keys.DeleteKey(c.Request.Context(), c.Param("realm"), c.Param("kid")); err != nil {
		h.fail(c, "failed to delete key", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListKeys handles GET /admin/realms/:realm/keys.
func (h *KeyHandler) ListKeys(c *gin.Context) {
	meta, err := h.keys.ListKeys(c.Request.Context(), c.Param("realm"))
	if err != nil {
		h.fail(c, "failed to list keys", err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, meta)
}

// GetActive handles GET /admin/realms/:realm/keys/active.
func (h *KeyHandler) GetActive(c *gin.Context) {
	active, err := h.keys.GetActive(c.Request.Context(), c.Param("realm"))
	if err != nil {
		h.fail(c, "failed to get active keys", err)
		return
	}
	dto.SendSuccess(c, http.StatusOK, gin.H{"active": active})
}

// Certs handles GET /realms/:realm/protocol/openid-connect/certs.
// The ETag changes whenever the set of verification keys changes.
func (h *KeyHandler) Certs(c *gin.Context) {
	set, err := h.keys.JWKS(c.Request.Context(), c.Param("realm"))
	if err != nil {
		h.fail(c, "failed to build jwks", err)
		return
	}
	body, err := json.Marshal(set)
	if err != nil {
		h.fail(c, "failed to encode jwks", err)
		return
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	c.Header("Cache-Control", "no-cache")
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *KeyHandler) fail(c *gin.Context, msg string, err error) {
	if cbcErr, ok := errors.AsCBCError(err); !ok || cbcErr.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), msg, err, logger.String("tenant_id", c.Param("realm")))
	}
	_ = c.Error(err)
	dto.SendError(c, err)
}
