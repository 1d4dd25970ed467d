// Package http wires the gin engine: middleware, routes and the HTTP server.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/realmkeys/internal/application/dto"
	"github.com/turtacn/realmkeys/internal/application/service"
	"github.com/turtacn/realmkeys/internal/config"
	domainservice "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/internal/interfaces/http/handlers"
	"github.com/turtacn/realmkeys/internal/interfaces/http/middleware"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// Handlers groups the route handlers served by the Router.
type Handlers struct {
	Health   *handlers.HealthHandler
	Keys     *handlers.KeyHandler
	OIDC     *handlers.OIDCHandler
	Sessions *handlers.SessionHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	config   *config.ServerConfig
	logger   logger.Logger
	handlers Handlers
	sessions service.SessionAppService
	metrics  middleware.HTTPMetrics
	tracer   trace.Tracer
	limiter  domainservice.RateLimiter
	server   *http.Server
}

// NewRouter 创建路由器。limiter 为 nil 时不限流。
func NewRouter(
	cfg *config.ServerConfig,
	log logger.Logger,
	h Handlers,
	sessions service.SessionAppService,
	metrics middleware.HTTPMetrics,
	tracer trace.Tracer,
	limiter domainservice.RateLimiter,
) *Router {
	r := &Router{
		engine:   gin.New(),
		config:   cfg,
		logger:   log,
		handlers: h,
		sessions: sessions,
		metrics:  metrics,
		tracer:   tracer,
		limiter:  limiter,
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.ObservabilityMiddleware(r.tracer, r.metrics))
	r.engine.Use(middleware.LoggingMiddleware(r.logger))

	// CORS 配置
	if len(r.config.CORSOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     r.config.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// 健康检查路由（不需要认证）
	r.engine.GET("/health/live", r.handlers.Health.LivenessCheck)
	r.engine.GET("/health/ready", r.handlers.Health.ReadinessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Pprof 性能分析
	if r.config.PprofEnabled {
		pprof.Register(r.engine)
	}

	// 密钥管理路由
	admin := r.engine.Group("/admin/realms/:realm", middleware.AdminAuth(r.config.AdminToken))
	{
		admin.POST("/keys", r.handlers.Keys.CreateKey)
		admin.GET("/keys", r.handlers.Keys.ListKeys)
		admin.GET("/keys/active", r.handlers.Keys.GetActive)
		admin.DELETE("/keys/:kid", r.handlers.Keys.DeleteKey)
	}

	// 领域路由
	realm := r.engine.Group("/realms/:realm")
	throttle := middleware.RateLimit(r.limiter, r.logger)
	{
		oidc := realm.Group("/protocol/openid-connect")
		{
			oidc.GET("/certs", r.handlers.Keys.Certs)
			oidc.POST("/token", throttle, r.handlers.OIDC.Token)
			oidc.POST("/token/introspect", r.handlers.OIDC.Introspect)
			oidc.GET("/userinfo", r.handlers.OIDC.UserInfo)
			oidc.POST("/userinfo", r.handlers.OIDC.UserInfo)
		}

		cookies := middleware.CookieSettings{Secure: r.config.CookieSecure}
		realm.POST("/login", throttle, r.handlers.Sessions.Login)
		realm.POST("/logout", r.handlers.Sessions.Logout)
		realm.GET("/account", middleware.IdentityCookie(r.sessions, cookies, r.logger), r.handlers.Sessions.Account)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		dto.SendError(c, errors.NewError(errors.CodeNotFound, http.StatusNotFound,
			"The requested resource was not found", "route not found"))
	})
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	addr := fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    r.config.ReadTimeout,
		WriteTimeout:   r.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

// Engine returns the gin engine, used by tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
