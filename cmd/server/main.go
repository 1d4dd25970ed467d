package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/turtacn/realmkeys/internal/application"
	appservice "github.com/turtacn/realmkeys/internal/application/service"
	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	domainservice "github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/internal/infrastructure/audit"
	"github.com/turtacn/realmkeys/internal/infrastructure/auth"
	"github.com/turtacn/realmkeys/internal/infrastructure/keyprovider"
	"github.com/turtacn/realmkeys/internal/infrastructure/monitoring"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/memory"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/redis"
	"github.com/turtacn/realmkeys/internal/infrastructure/persistence/vault"
	"github.com/turtacn/realmkeys/internal/infrastructure/ratelimit"
	"github.com/turtacn/realmkeys/internal/interfaces/http"
	"github.com/turtacn/realmkeys/internal/interfaces/http/handlers"
	"github.com/turtacn/realmkeys/internal/interfaces/http/middleware"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "realmkeys-server",
	Short:        "Serve realm signing keys, OIDC tokens and identity cookies.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, configFile)
	},
}

func main() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the config file")
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("realmkeys-server: %v", err)
	}
}

// closer releases one resource at shutdown.
type closer func(ctx context.Context)

func run(ctx context.Context, configPath string) error {
	// Load config
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()
	loader.OnLogLevelChange(func(level string) {
		appLogger.SetLevel(level)
		appLogger.Info(context.Background(), "Log level changed", logger.String("level", level))
	})
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](shutdownCtx)
		}
	}()

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	closers = append(closers, func(ctx context.Context) { _ = tracing.Shutdown(ctx) })

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	checks := map[string]handlers.HealthCheck{}

	// Initialize database
	var db *postgres.DBConnection
	if cfg.Store.Driver == "postgres" {
		db, err = postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, func(context.Context) { db.Close() })
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		checks["database"] = db.Ping
	}

	// Key record store
	var store repository.KeyRepository
	switch cfg.Store.Driver {
	case "postgres":
		store = postgres.NewKeyRepository(db.DB(), metrics)
	case "vault":
		client, err := vault.NewClient(cfg.Vault)
		if err != nil {
			return fmt.Errorf("create vault client: %w", err)
		}
		store = vault.NewKeyRepository(cfg.Vault, client, appLogger, metrics)
		checks["vault"] = func(ctx context.Context) error {
			_, err := client.Sys().HealthWithContext(ctx)
			return err
		}
	default:
		store = memory.NewKeyRepository()
	}

	// Session store
	var sessions repository.SessionStore
	var redisConn *redis.RedisConnection
	if cfg.Store.Sessions == "redis" {
		redisConn = redis.NewRedisConnection(&cfg.Redis, appLogger)
		if err := redisConn.Connect(ctx); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func(context.Context) { _ = redisConn.Close() })
		sessions = redis.NewSessionStore(redisConn.Client(), cfg.Redis.KeyPrefix, metrics)
		checks["redis"] = func(ctx context.Context) error {
			_, err := redisConn.HealthCheck(ctx)
			return err
		}
	} else {
		sessions = memory.NewSessionStore(time.Minute)
	}

	// Key lifecycle records
	var lifecycle []domainservice.KeyLifecycleRegistry
	if db != nil {
		lifecycle = append(lifecycle, postgres.NewKLRRepository(db.DB()))
	}
	if cfg.Kafka.Enabled {
		producer := audit.NewKafkaProducer(cfg.Kafka, appLogger)
		closers = append(closers, func(context.Context) { _ = producer.Close() })
		lifecycle = append(lifecycle, producer)
	}
	if len(lifecycle) == 0 {
		lifecycle = append(lifecycle, audit.NewMemoryRegistry())
	}
	klr := audit.NewMultiRegistry(appLogger, lifecycle...)

	// Registry, signer and verifier
	providers, err := keyprovider.NewDefaultProviderSet(cfg.Keys.MaterialCacheSize, metrics)
	if err != nil {
		return fmt.Errorf("create key providers: %w", err)
	}
	registry := domainservice.NewKeyRegistry(store, providers, appLogger, metrics,
		domainservice.WithTenantCapacity(cfg.Keys.TenantCacheSize))
	keys := repository.NewNotifyingKeyRepository(store, registry)
	signer := domainservice.NewJWTSigner(registry, appLogger, metrics)
	verifier := domainservice.NewJWTVerifier(registry, appLogger, metrics)
	claims := domainservice.NewClaimsPolicy(cfg.Tokens.IssuerBaseURL, constants.ClockSkewTolerance)
	cookies := domainservice.NewCookieRefreshPolicy(registry, verifier, signer, claims, appLogger, metrics)

	authenticator, err := auth.NewStaticAuthenticator(cfg.Users)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	// Initialize application services
	settings := appservice.NewTokenSettings(cfg)
	kms := application.NewKeyManagementService(providers, keys, registry, klr, metrics, appLogger)
	tokenSvc := appservice.NewTokenAppService(authenticator, sessions, signer, verifier, claims, settings, metrics, appLogger)
	sessionSvc := appservice.NewSessionAppService(authenticator, sessions, signer, verifier, cookies, claims, settings, appLogger)

	if err := kms.Bootstrap(ctx, cfg.Keys.Bootstrap); err != nil {
		return fmt.Errorf("bootstrap keys: %w", err)
	}

	// Credential attempt throttling
	var limiter domainservice.RateLimiter
	if cfg.RateLimit.Enabled {
		if redisConn != nil {
			limiter, err = ratelimit.NewRedisRateLimiter(redisConn.Client(), &ratelimit.RateLimiterConfig{
				Limit:               cfg.RateLimit.Attempts,
				Window:              cfg.RateLimit.Window,
				EnableLocalFallback: true,
				KeyPrefix:           cfg.Redis.KeyPrefix + ":ratelimit",
			}, appLogger)
			if err != nil {
				return fmt.Errorf("create rate limiter: %w", err)
			}
		} else {
			memLimiter := ratelimit.NewMemoryRateLimiter(cfg.RateLimit.Attempts, cfg.RateLimit.Window)
			go memLimiter.RunCleanup(ctx, cfg.RateLimit.Window)
			limiter = memLimiter
		}
	}

	// Initialize HTTP handlers and router
	router := http.NewRouter(&cfg.Server, appLogger, http.Handlers{
		Health:   handlers.NewHealthHandler(checks, appLogger),
		Keys:     handlers.NewKeyHandler(kms, appLogger),
		OIDC:     handlers.NewOIDCHandler(tokenSvc, appLogger),
		Sessions: handlers.NewSessionHandler(sessionSvc, middleware.CookieSettings{Secure: cfg.Server.CookieSecure}, appLogger),
	}, sessionSvc, metrics, tracing.Tracer(), limiter)

	errCh := make(chan error, 1)
	go func() { errCh <- router.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info(context.Background(), "Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := router.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Server forced to shutdown", err)
		return err
	}
	appLogger.Info(shutdownCtx, "Server exited")
	return nil
}
