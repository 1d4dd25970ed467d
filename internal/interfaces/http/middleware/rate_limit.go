package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// RateLimit throttles credential endpoints per realm and client address.
// A limiter failure lets the request through.
// RateLimit 按领域和客户端地址限制凭据端点的请求频率。限流器故障时放行请求。
func RateLimit(limiter service.RateLimiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := c.Param("realm") + ":" + c.ClientIP()
		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn(c.Request.Context(), "rate limiter unavailable", logger.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			log.Warn(c.Request.Context(), "credential attempts rate limited",
				logger.String("tenant_id", c.Param("realm")),
				logger.String("client_ip", c.ClientIP()),
			)
			dto.SendError(c, errors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
