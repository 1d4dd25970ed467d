package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/realmkeys/internal/domain/service"
)

// Metrics manages the Prometheus metrics and implements service.Metrics.
// Metrics 管理 Prometheus 指标并实现 service.Metrics 接口。
type Metrics struct {
	SignTotal          *prometheus.CounterVec
	SignLatency        *prometheus.HistogramVec
	VerifyTotal        *prometheus.CounterVec
	CookieDecisions    *prometheus.CounterVec
	RegistryRebuilds   *prometheus.CounterVec
	RebuildLatency     *prometheus.HistogramVec
	KeyMutations       *prometheus.CounterVec
	TokenIssueRequests *prometheus.CounterVec
	TokenIssueLatency  *prometheus.HistogramVec
	CacheAccess        *prometheus.CounterVec
	DBQueryLatency     *prometheus.HistogramVec
	VaultAPILatency    *prometheus.HistogramVec
	VaultAPIErrors     *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	HTTPInFlight       prometheus.Gauge
}

var _ service.Metrics = (*Metrics)(nil)

// NewMetrics creates the metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SignTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_sign_total",
			Help: "Total number of signing attempts.",
		}, []string{"tenant_id", "algorithm", "result"}),
		SignLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realmkeys_sign_latency_seconds",
			Help:    "Latency of signing operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"algorithm"}),
		VerifyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_verify_total",
			Help: "Total number of verifications by outcome.",
		}, []string{"tenant_id", "result", "reason"}),
		CookieDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_cookie_decisions_total",
			Help: "Identity cookie decisions by action.",
		}, []string{"tenant_id", "action"}),
		RegistryRebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_registry_rebuilds_total",
			Help: "Tenant key snapshot rebuilds.",
		}, []string{"tenant_id", "result"}),
		RebuildLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realmkeys_registry_rebuild_latency_seconds",
			Help:    "Latency of tenant key snapshot rebuilds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		KeyMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_key_mutations_total",
			Help: "Administrative key additions and removals.",
		}, []string{"tenant_id", "operation", "result"}),
		TokenIssueRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_token_issue_requests_total",
			Help: "Total number of token issue requests.",
		}, []string{"tenant_id", "grant_type", "result", "error_code"}),
		TokenIssueLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realmkeys_token_issue_latency_seconds",
			Help:    "Latency of token issue requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"grant_type"}),
		CacheAccess: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_cache_access_total",
			Help: "Cache hits and misses.",
		}, []string{"cache", "result"}),
		DBQueryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realmkeys_db_query_latency_seconds",
			Help:    "Latency of database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		VaultAPILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realmkeys_vault_api_latency_seconds",
			Help:    "Latency of Vault API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		VaultAPIErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_vault_api_errors_total",
			Help: "Failed Vault API calls.",
		}, []string{"operation"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realmkeys_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"path", "method", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realmkeys_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realmkeys_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordSign records one signing attempt.
func (m *Metrics) RecordSign(tenantID, algorithm string, success bool, duration time.Duration) {
	m.SignTotal.WithLabelValues(tenantID, algorithm, result(success)).Inc()
	m.SignLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordVerify records one verification.
func (m *Metrics) RecordVerify(tenantID string, success bool, reason string) {
	m.VerifyTotal.WithLabelValues(tenantID, result(success), reason).Inc()
}

// RecordCookieDecision records the action taken for an identity cookie.
func (m *Metrics) RecordCookieDecision(tenantID, action string) {
	m.CookieDecisions.WithLabelValues(tenantID, action).Inc()
}

// RecordRegistryRebuild records a snapshot rebuild.
func (m *Metrics) RecordRegistryRebuild(tenantID string, duration time.Duration, err error) {
	m.RegistryRebuilds.WithLabelValues(tenantID, result(err == nil)).Inc()
	m.RebuildLatency.WithLabelValues(result(err == nil)).Observe(duration.Seconds())
}

// RecordKeyMutation records an administrative add or remove.
func (m *Metrics) RecordKeyMutation(tenantID, operation string, success bool) {
	m.KeyMutations.WithLabelValues(tenantID, operation, result(success)).Inc()
}

// RecordTokenIssue records metrics for a token issue event.
func (m *Metrics) RecordTokenIssue(tenantID, grantType string, success bool, duration time.Duration, errorCode string) {
	m.TokenIssueRequests.WithLabelValues(tenantID, grantType, result(success), errorCode).Inc()
	m.TokenIssueLatency.WithLabelValues(grantType).Observe(duration.Seconds())
}

// RecordCacheAccess records a cache hit or miss.
func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	m.CacheAccess.WithLabelValues(cacheType, label).Inc()
}

// RecordDBQuery records the duration of a database query.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration) {
	m.DBQueryLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVaultAPI records the latency and error status of a Vault API call.
func (m *Metrics) RecordVaultAPI(operation string, duration time.Duration, err error) {
	m.VaultAPILatency.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.VaultAPIErrors.WithLabelValues(operation).Inc()
	}
}

// ActiveRequestsInc tracks a request entering the server.
func (m *Metrics) ActiveRequestsInc() { m.HTTPInFlight.Inc() }

// ActiveRequestsDec tracks a request leaving the server.
func (m *Metrics) ActiveRequestsDec() { m.HTTPInFlight.Dec() }

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}
