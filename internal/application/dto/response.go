package dto

import (
	goerrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/realmkeys/pkg/errors"
)

// ErrorResponse OAuth 2.0 风格的错误响应
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// LoginRequest 登录请求 DTO
type LoginRequest struct {
	Username string `form:"username" json:"username" validate:"required,max=255"`
	Password string `form:"password" json:"password" validate:"required"`
}

// AccountResponse 账户信息响应 DTO
type AccountResponse struct {
	Subject   string `json:"sub"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_state"`
	ExpiresAt int64  `json:"session_expires_at"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewErrorResponse 将错误转换为 HTTP 状态码与响应体。
// 签名校验失败的具体原因从不暴露给调用方。
func NewErrorResponse(err error) (int, *ErrorResponse) {
	switch {
	case errors.IsVerificationFailure(err):
		return http.StatusUnauthorized, &ErrorResponse{
			Error:            string(errors.CodeInvalidToken),
			ErrorDescription: "Token verification failed",
		}
	case goerrors.Is(err, errors.ErrNoActiveKey):
		return http.StatusInternalServerError, &ErrorResponse{
			Error:            string(errors.CodeServerError),
			ErrorDescription: "Internal server error",
		}
	}

	if cbcErr, ok := errors.AsCBCError(err); ok {
		return cbcErr.HTTPStatus(), &ErrorResponse{
			Error:            string(cbcErr.Code()),
			ErrorDescription: cbcErr.Description(),
		}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(errors.CodeServerError),
		ErrorDescription: "Internal server error",
	}
}

// SendError 写入错误响应并中止后续处理
func SendError(c *gin.Context, err error) {
	status, body := NewErrorResponse(err)
	c.AbortWithStatusJSON(status, body)
}

// SendSuccess 写入成功响应
func SendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
