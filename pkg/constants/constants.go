// Package constants defines system-wide constants for the realm key service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Token Type Constants
// ================================================================================

// TokenType represents the type of a signed artifact issued by the service.
type TokenType string

const (
	// TokenTypeAccess represents a short-lived access token
	TokenTypeAccess TokenType = "Bearer"

	// TokenTypeRefresh represents a refresh token
	TokenTypeRefresh TokenType = "Refresh"

	// TokenTypeID represents an OpenID Connect ID token
	TokenTypeID TokenType = "ID"

	// TokenTypeIdentityCookie represents the signed session cookie
	TokenTypeIdentityCookie TokenType = "Identity"
)

// GrantType represents an OAuth 2.0 grant type accepted by the token endpoint.
type GrantType string

const (
	// GrantTypePassword is the resource owner password credentials grant
	GrantTypePassword GrantType = "password"

	// GrantTypeRefreshToken exchanges a refresh token for a new token set
	GrantTypeRefreshToken GrantType = "refresh_token"
)

// ================================================================================
// JWT Algorithm Constants
// ================================================================================

// JWTAlgorithm represents the signing algorithm family of a key.
type JWTAlgorithm string

const (
	// AlgorithmRS256 represents RSA signature with SHA-256
	AlgorithmRS256 JWTAlgorithm = "RS256"

	// AlgorithmES256 represents ECDSA P-256 signature with SHA-256
	AlgorithmES256 JWTAlgorithm = "ES256"
)

// DefaultJWTAlgorithm is the algorithm used when a caller does not ask for one.
const DefaultJWTAlgorithm = AlgorithmRS256

// ================================================================================
// Key Provider Constants
// ================================================================================

// ProviderID identifies a key provider type.
type ProviderID string

const (
	// ProviderRSAGenerated generates a fresh RSA key pair
	ProviderRSAGenerated ProviderID = "rsa-generated"

	// ProviderRSA imports an externally supplied RSA private key (PEM)
	ProviderRSA ProviderID = "rsa"

	// ProviderECDSAGenerated generates a fresh ECDSA P-256 key pair
	ProviderECDSAGenerated ProviderID = "ecdsa-generated"
)

const (
	// DefaultRSAKeySize is used by rsa-generated when no size is requested
	DefaultRSAKeySize = 2048

	// DefaultKeyPriority is assigned to keys created without an explicit priority
	DefaultKeyPriority int64 = 0

	// RegistryTenantCapacity bounds how many tenants keep a cached key view
	RegistryTenantCapacity = 10000
)

// AllowedRSAKeySizes lists the sizes accepted by rsa-generated.
var AllowedRSAKeySizes = []int{2048, 3072, 4096}

// ================================================================================
// Token Lifetime Constants
// ================================================================================

const (
	// AccessTokenDefaultTTL is the default lifetime for access and ID tokens
	AccessTokenDefaultTTL = 5 * time.Minute

	// RefreshTokenDefaultTTL is the default lifetime for refresh tokens
	RefreshTokenDefaultTTL = 30 * time.Minute

	// SessionDefaultTTL is the default lifetime of a login session and its cookie
	SessionDefaultTTL = 10 * time.Hour

	// ClockSkewTolerance is accepted drift when validating exp/nbf/iat claims
	ClockSkewTolerance = 30 * time.Second
)

// ================================================================================
// Cookie Constants
// ================================================================================

const (
	// IdentityCookieName is the name of the signed session cookie
	IdentityCookieName = "REALM_IDENTITY"

	// IdentityCookiePath is the path prefix the cookie is scoped to
	IdentityCookiePath = "/realms/"
)

// ================================================================================
// Key Lifecycle Event Constants
// ================================================================================

// KeyEventType represents a key lifecycle transition.
type KeyEventType string

const (
	// KeyEventCreated is emitted when a key record is added
	KeyEventCreated KeyEventType = "CREATED"

	// KeyEventRemoved is emitted when a key record is removed
	KeyEventRemoved KeyEventType = "REMOVED"
)

// ================================================================================
// Log Level Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyTenantID is the key for tenant (realm) ID in context
	ContextKeyTenantID ContextKey = "tenant_id"

	// ContextKeySession is the gin context key holding the resumed session
	ContextKeySession ContextKey = "session"
)

// ================================================================================
// HTTP Header Constants
// ================================================================================

const (
	// HeaderRequestID carries the request correlation ID
	HeaderRequestID = "X-Request-ID"

	// HeaderAuthorization carries bearer credentials
	HeaderAuthorization = "Authorization"

	// BearerPrefix prefixes bearer credentials in the Authorization header
	BearerPrefix = "Bearer "
)
