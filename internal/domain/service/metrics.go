package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction keeps the domain independent of the monitoring implementation (Prometheus).
// Metrics 定义了收集业务指标的接口。
// 这种抽象使领域层独立于具体的监控实现（Prometheus）。
type Metrics interface {
	// RecordSign records one signing attempt.
	// RecordSign 记录一次签名尝试。
	RecordSign(tenantID, algorithm string, success bool, duration time.Duration)

	// RecordVerify records one verification; reason is empty on success.
	// RecordVerify 记录一次验证；成功时 reason 为空。
	RecordVerify(tenantID string, success bool, reason string)

	// RecordCookieDecision records the action taken for a presented identity cookie.
	RecordCookieDecision(tenantID, action string)

	// RecordRegistryRebuild records the rebuild of a tenant's key snapshot.
	// RecordRegistryRebuild 记录租户密钥快照的重建。
	RecordRegistryRebuild(tenantID string, duration time.Duration, err error)

	// RecordKeyMutation records an administrative add or remove.
	RecordKeyMutation(tenantID, operation string, success bool)

	// RecordTokenIssue records metrics related to the token issuance process.
	// RecordTokenIssue 记录与令牌颁发过程相关的指标。
	RecordTokenIssue(tenantID, grantType string, success bool, duration time.Duration, errorCode string)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(cacheType string, hit bool)

	// RecordDBQuery records the duration of a database query.
	RecordDBQuery(operation string, duration time.Duration)

	// RecordVaultAPI records the latency and error status of a Vault API call.
	// RecordVaultAPI 记录 Vault API 调用的延迟和错误状态。
	RecordVaultAPI(operation string, duration time.Duration, err error)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordSign(string, string, bool, time.Duration)               {}
func (NoopMetrics) RecordVerify(string, bool, string)                            {}
func (NoopMetrics) RecordCookieDecision(string, string)                          {}
func (NoopMetrics) RecordRegistryRebuild(string, time.Duration, error)           {}
func (NoopMetrics) RecordKeyMutation(string, string, bool)                       {}
func (NoopMetrics) RecordTokenIssue(string, string, bool, time.Duration, string) {}
func (NoopMetrics) RecordCacheAccess(string, bool)                               {}
func (NoopMetrics) RecordDBQuery(string, time.Duration)                          {}
func (NoopMetrics) RecordVaultAPI(string, time.Duration, error)                  {}
