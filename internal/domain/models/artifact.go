package models

import "github.com/turtacn/realmkeys/pkg/constants"

// SignedArtifact is the output of the signer: a compact JWS and the key that produced it.
// SignedArtifact 是签名器的输出：紧凑 JWS 以及生成它的密钥。
type SignedArtifact struct {
	KeyID     string
	Algorithm constants.JWTAlgorithm
	Token     string
}

// VerificationReason explains why a verification failed. It is internal only and
// must never be returned to external callers.
// VerificationReason 说明验证失败的原因。仅供内部使用，绝不能返回给外部调用方。
type VerificationReason string

const (
	ReasonNone            VerificationReason = ""
	ReasonMalformedHeader VerificationReason = "malformed_header"
	ReasonUnknownKey      VerificationReason = "unknown_key"
	ReasonBadSignature    VerificationReason = "bad_signature"
)

// VerificationResult is either Valid(KeyID) or Invalid(Reason).
// VerificationResult 为 Valid(KeyID) 或 Invalid(Reason)。
type VerificationResult struct {
	Valid  bool
	KeyID  string
	Reason VerificationReason
}

// Valid builds a successful result.
func Valid(keyID string) VerificationResult {
	return VerificationResult{Valid: true, KeyID: keyID}
}

// Invalid builds a failed result. keyID may be empty when the header carried none.
func Invalid(keyID string, reason VerificationReason) VerificationResult {
	return VerificationResult{KeyID: keyID, Reason: reason}
}

// CookieAction is what the caller must do with a presented session cookie.
// CookieAction 表示调用方对所出示的会话 Cookie 应执行的操作。
type CookieAction string

const (
	// CookieKeep leaves the cookie untouched.
	CookieKeep CookieAction = "keep"
	// CookieRefresh replaces the cookie with Decision.Refreshed.
	// CookieRefresh 用 Decision.Refreshed 替换 Cookie。
	CookieRefresh CookieAction = "refresh"
	// CookieReject treats the session as absent and forces re-authentication.
	// CookieReject 将会话视为不存在并强制重新认证。
	CookieReject CookieAction = "reject"
)

// CookieDecision is the outcome of the cookie refresh policy.
type CookieDecision struct {
	Action CookieAction
	// Claims are the verified cookie claims; nil on reject.
	Claims *TokenClaims
	// Verification is the verification outcome of the presented cookie.
	Verification VerificationResult
	// Refreshed is the re-signed cookie, set only for CookieRefresh.
	Refreshed *SignedArtifact
}
